package locator

import (
	"fmt"
	"strings"
)

const placeholder = "%s"

// FormatError reports a descriptor that cannot be parsed or whose placeholders
// do not line up with the supplied substitutions. It indicates a programming
// error in the chain definition or the caller.
type FormatError struct {
	Template string
	Want     int
	Got      int
	Reason   string
}

func (e *FormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid locator %q: %s", e.Template, e.Reason)
	}
	return fmt.Sprintf("locator %q expects %d substitution(s), got %d", e.Template, e.Want, e.Got)
}

// substitute replaces each %s in template with the next value, in order.
func substitute(template string, subs []string) (string, error) {
	if len(subs) == 0 {
		return template, nil
	}
	want := strings.Count(template, placeholder)
	if want != len(subs) {
		return "", &FormatError{Template: template, Want: want, Got: len(subs)}
	}

	var b strings.Builder
	rest := template
	for _, s := range subs {
		idx := strings.Index(rest, placeholder)
		b.WriteString(rest[:idx])
		b.WriteString(s)
		rest = rest[idx+len(placeholder):]
	}
	b.WriteString(rest)
	return b.String(), nil
}
