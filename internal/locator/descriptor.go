// Package locator models strategy-tagged element descriptors and their ordered
// fallback chains. Descriptors are parsed once, when a chain is defined, so a
// malformed entry is reported at load time rather than in the middle of a run.
package locator

import (
	"fmt"
	"strings"
)

// Strategy is the lookup mechanism a descriptor uses.
type Strategy int

const (
	StrategyID Strategy = iota
	StrategyXPath
	StrategyCSS
	StrategyName
	StrategyClass
	StrategyLinkText
)

var strategyNames = map[Strategy]string{
	StrategyID:       "id",
	StrategyXPath:    "xpath",
	StrategyCSS:      "css",
	StrategyName:     "name",
	StrategyClass:    "class",
	StrategyLinkText: "linkText",
}

// keywords maps the lower-cased descriptor prefix to its strategy.
// "text" is the link-text shorthand.
var keywords = map[string]Strategy{
	"id":    StrategyID,
	"xpath": StrategyXPath,
	"css":   StrategyCSS,
	"name":  StrategyName,
	"class": StrategyClass,
	"text":  StrategyLinkText,
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Descriptor is one parsed "strategy:value" entry. Template may still hold
// positional %s placeholders.
type Descriptor struct {
	Strategy Strategy
	Template string
	// Raw is the text the descriptor was parsed from, kept for diagnostics.
	Raw string
}

func (d Descriptor) String() string { return d.Raw }

// Placeholders returns how many %s slots the template carries.
func (d Descriptor) Placeholders() int {
	return strings.Count(d.Template, placeholder)
}

// Query binds the substitutions to the template. With no substitutions the
// template is used verbatim.
func (d Descriptor) Query(subs ...string) (Query, error) {
	value, err := substitute(d.Template, subs)
	if err != nil {
		return Query{}, err
	}
	return Query{Strategy: d.Strategy, Value: value, Source: d.Raw}, nil
}

// Query is a fully bound, strategy-specific lookup ready to hand to a page.
type Query struct {
	Strategy Strategy
	Value    string
	// Source is the raw descriptor this query came from.
	Source string
}

func (q Query) String() string {
	return q.Strategy.String() + ":" + q.Value
}

// Parse converts descriptor text into a Descriptor.
//
// The text is split on its first ':'. A recognized, case-insensitive keyword
// selects the strategy and the remainder is the value. An unrecognized keyword
// means the whole text is an xpath expression, since xpaths routinely contain
// colons. Without a colon, text starting with "//" or "(" is xpath and
// anything else is an id.
func Parse(text string) (Descriptor, error) {
	if strings.TrimSpace(text) == "" {
		return Descriptor{}, &FormatError{Template: text, Reason: "descriptor is empty"}
	}

	d := Descriptor{Raw: text}
	if idx := strings.Index(text, ":"); idx >= 0 {
		if strategy, ok := keywords[strings.ToLower(text[:idx])]; ok {
			d.Strategy = strategy
			d.Template = text[idx+1:]
		} else {
			d.Strategy = StrategyXPath
			d.Template = text
		}
	} else {
		d.Strategy = classify(text)
		d.Template = text
	}

	if strings.TrimSpace(d.Template) == "" {
		return Descriptor{}, &FormatError{Template: text, Reason: fmt.Sprintf("%s descriptor has no value", d.Strategy)}
	}
	return d, nil
}

// MustParse is Parse for static tables; it panics on malformed input.
func MustParse(text string) Descriptor {
	d, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseQuery applies subs to the raw text, then parses it into a Query.
func ParseQuery(text string, subs ...string) (Query, error) {
	bound, err := substitute(text, subs)
	if err != nil {
		return Query{}, err
	}
	d, err := Parse(bound)
	if err != nil {
		return Query{}, err
	}
	return Query{Strategy: d.Strategy, Value: d.Template, Source: text}, nil
}

func classify(value string) Strategy {
	if strings.HasPrefix(value, "//") || strings.HasPrefix(value, "(") {
		return StrategyXPath
	}
	return StrategyID
}
