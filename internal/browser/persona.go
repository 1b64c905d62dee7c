// internal/browser/persona.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/bulwark/internal/config"
)

// Persona pins the locale-dependent surface of a session (user agent,
// timezone, locale, Accept-Language) so a run renders the same on every
// machine. Empty fields keep the browser's own value.
type Persona struct {
	UserAgent string
	Timezone  string
	Locale    string
	Languages []string
}

// PersonaFromConfig reads the persona settings of the browser section.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	return Persona{
		UserAgent: cfg.UserAgent,
		Timezone:  cfg.Timezone,
		Locale:    cfg.Locale,
		Languages: cfg.Languages,
	}
}

// Tasks returns the emulation overrides for the persona.
func (p Persona) Tasks() chromedp.Tasks {
	var tasks chromedp.Tasks
	if p.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(p.UserAgent)
		if len(p.Languages) > 0 {
			ua = ua.WithAcceptLanguage(strings.Join(p.Languages, ","))
		}
		tasks = append(tasks, ua)
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if h := p.acceptLanguage(); h != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": h}).Do(ctx); err != nil {
				return fmt.Errorf("failed to set Accept-Language: %w", err)
			}
			return nil
		}))
	}
	return tasks
}

// acceptLanguage renders Languages with descending q-values, e.g.
// "en-US,en;q=0.9".
func (p Persona) acceptLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	parts := make([]string, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts[i] = lang
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts[i] = fmt.Sprintf("%s;q=%.1f", lang, q)
	}
	return strings.Join(parts, ",")
}
