package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/bulwark/internal/locator"
)

// selector translates a bound locator query into a chromedp selector and the
// query options that go with it. Attribute strategies become CSS so they can
// be scoped to a frame; xpath and link text go through DOM search.
func selector(q locator.Query) (string, []chromedp.QueryOption) {
	switch q.Strategy {
	case locator.StrategyID:
		return attrSelector("id", q.Value), []chromedp.QueryOption{chromedp.ByQuery}
	case locator.StrategyName:
		return attrSelector("name", q.Value), []chromedp.QueryOption{chromedp.ByQuery}
	case locator.StrategyClass:
		return `[class~=` + cssString(q.Value) + `]`, []chromedp.QueryOption{chromedp.ByQuery}
	case locator.StrategyCSS:
		return q.Value, []chromedp.QueryOption{chromedp.ByQuery}
	case locator.StrategyLinkText:
		return "//a[normalize-space(.)=" + xpathLiteral(strings.TrimSpace(q.Value)) + "]", []chromedp.QueryOption{chromedp.BySearch}
	default:
		return q.Value, []chromedp.QueryOption{chromedp.BySearch}
	}
}

func attrSelector(attr, value string) string {
	return "[" + attr + "=" + cssString(value) + "]"
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(s) + `"`
}

// xpathLiteral quotes s for XPath 1.0, which has no escape syntax; strings
// holding both quote kinds are assembled with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + p + "'")
	}
	b.WriteString(")")
	return b.String()
}
