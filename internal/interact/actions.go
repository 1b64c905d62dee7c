// internal/interact/actions.go
// Package interact is the interaction layer scenarios use: every operation
// resolves its target through a locator chain, waits for the readiness the
// action needs, and on failure attaches a screenshot before returning.
package interact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/artifact"
	"github.com/xkilldash9x/bulwark/internal/browser"
	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/locator"
	"github.com/xkilldash9x/bulwark/internal/resolver"
)

// Driver is the set of native primitives the interaction layer is built on.
// *browser.Session implements it.
type Driver interface {
	resolver.Page
	artifact.Screenshotter

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	WaitClickable(ctx context.Context, n *cdp.Node) error
	Click(ctx context.Context, n *cdp.Node) error
	JSClick(ctx context.Context, n *cdp.Node) error
	Type(ctx context.Context, n *cdp.Node, text string) error
	Text(ctx context.Context, n *cdp.Node) (string, error)
	SelectByText(ctx context.Context, n *cdp.Node, text string) error
	Displayed(ctx context.Context, n *cdp.Node) (bool, error)
	EnterFrame(ctx context.Context, n *cdp.Node) error
	ExitFrame()
	SwitchToWindow(ctx context.Context, title string) error
	WaitDialog(ctx context.Context) (browser.Dialog, error)
	HandleDialog(ctx context.Context, accept bool) error
	AddCookie(ctx context.Context, c browser.Cookie) error
	WaitForLoad(ctx context.Context) error
	Title(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
}

var _ Driver = (*browser.Session)(nil)

const captureTimeout = 5 * time.Second

// Actions performs interactions against a single unit's driver. It is not
// shared between units.
type Actions struct {
	driver   Driver
	resolver *resolver.Resolver
	capturer *artifact.Capturer
	timeouts config.TimeoutsConfig
	logger   *zap.Logger
}

// New binds an Actions to driver.
func New(driver Driver, res *resolver.Resolver, capturer *artifact.Capturer, timeouts config.TimeoutsConfig, logger *zap.Logger) *Actions {
	return &Actions{
		driver:   driver,
		resolver: res,
		capturer: capturer,
		timeouts: timeouts,
		logger:   logger.Named("interact"),
	}
}

// Driver exposes the underlying driver for checks the façade does not cover.
func (a *Actions) Driver() Driver { return a.driver }

// Navigate loads rawURL.
func (a *Actions) Navigate(ctx context.Context, rawURL string) error {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return &InteractionError{Op: "navigate", Target: rawURL, Err: err}
	}
	if err := a.driver.Navigate(ctx, rawURL); err != nil {
		return a.fail(ctx, "navigate", rawURL, err)
	}
	a.logger.Info("Navigated.", zap.String("url", rawURL))
	return nil
}

// Resolve exposes chain resolution for callers that need the element itself.
func (a *Actions) Resolve(ctx context.Context, chain locator.Chain, subs ...string) (*resolver.Element, error) {
	return a.resolver.Resolve(ctx, a.driver, chain, subs...)
}

// BestQuery returns the native query of the first descriptor currently
// present in the DOM.
func (a *Actions) BestQuery(ctx context.Context, chain locator.Chain, subs ...string) (resolver.Best, error) {
	return a.resolver.BestQuery(ctx, a.driver, chain, subs...)
}

// WaitVisible resolves chain and fails the same way the other operations do.
func (a *Actions) WaitVisible(ctx context.Context, chain locator.Chain, subs ...string) error {
	if _, err := a.Resolve(ctx, chain, subs...); err != nil {
		return a.fail(ctx, "wait_visible", chain.Name(), err)
	}
	return nil
}

// Click resolves chain, waits until the element is clickable, and clicks it.
func (a *Actions) Click(ctx context.Context, chain locator.Chain, subs ...string) error {
	el, err := a.Resolve(ctx, chain, subs...)
	if err != nil {
		return a.fail(ctx, "click", chain.Name(), err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.timeouts.Wait)
	defer cancel()
	if err := a.driver.WaitClickable(waitCtx, el.Node); err != nil {
		return a.fail(ctx, "click", el.String(), fmt.Errorf("element never became clickable: %w", err))
	}
	if err := a.driver.Click(waitCtx, el.Node); err != nil {
		return a.fail(ctx, "click", el.String(), err)
	}
	a.logger.Info("Clicked.", zap.String("target", chain.Name()), zap.String("query", el.String()))
	return nil
}

// JSClick clicks through script. Use it where an overlay swallows native clicks.
func (a *Actions) JSClick(ctx context.Context, chain locator.Chain, subs ...string) error {
	el, err := a.Resolve(ctx, chain, subs...)
	if err != nil {
		return a.fail(ctx, "js_click", chain.Name(), err)
	}
	if err := a.driver.JSClick(ctx, el.Node); err != nil {
		return a.fail(ctx, "js_click", el.String(), err)
	}
	a.logger.Info("Clicked through script.", zap.String("target", chain.Name()))
	return nil
}

// Type clears the resolved field and types text into it.
func (a *Actions) Type(ctx context.Context, chain locator.Chain, text string, subs ...string) error {
	el, err := a.Resolve(ctx, chain, subs...)
	if err != nil {
		return a.fail(ctx, "type", chain.Name(), err)
	}
	if err := a.driver.Type(ctx, el.Node, text); err != nil {
		return a.fail(ctx, "type", el.String(), err)
	}
	a.logger.Info("Typed into field.", zap.String("target", chain.Name()), zap.Int("length", len(text)))
	return nil
}

// Text returns the element's visible text, or "" when it cannot be read.
// It never fails; callers assert on the value.
func (a *Actions) Text(ctx context.Context, chain locator.Chain, subs ...string) string {
	el, err := a.Resolve(ctx, chain, subs...)
	if err != nil {
		a.logger.Warn("Text unavailable; returning empty string.", zap.String("target", chain.Name()), zap.Error(err))
		return ""
	}
	text, err := a.driver.Text(ctx, el.Node)
	if err != nil {
		a.logger.Warn("Text unavailable; returning empty string.", zap.String("target", chain.Name()), zap.Error(err))
		return ""
	}
	a.logger.Debug("Read text.", zap.String("target", chain.Name()), zap.String("text", text))
	return text
}

// IsDisplayed reports whether the element resolves and is rendered. Any
// failure reads as false.
func (a *Actions) IsDisplayed(ctx context.Context, chain locator.Chain, subs ...string) bool {
	el, err := a.Resolve(ctx, chain, subs...)
	if err != nil {
		a.logger.Debug("Element not displayed.", zap.String("target", chain.Name()), zap.Error(err))
		return false
	}
	visible, err := a.driver.Displayed(ctx, el.Node)
	if err != nil {
		a.logger.Debug("Element not displayed.", zap.String("target", chain.Name()), zap.Error(err))
		return false
	}
	return visible
}

// SelectByVisibleText picks the option whose visible text equals text.
func (a *Actions) SelectByVisibleText(ctx context.Context, chain locator.Chain, text string, subs ...string) error {
	el, err := a.Resolve(ctx, chain, subs...)
	if err != nil {
		return a.fail(ctx, "select", chain.Name(), err)
	}
	if err := a.driver.SelectByText(ctx, el.Node, text); err != nil {
		return a.fail(ctx, "select", el.String(), err)
	}
	a.logger.Info("Option selected.", zap.String("target", chain.Name()), zap.String("option", text))
	return nil
}

// SwitchToFrame scopes subsequent lookups to the resolved iframe.
func (a *Actions) SwitchToFrame(ctx context.Context, chain locator.Chain, subs ...string) error {
	el, err := a.Resolve(ctx, chain, subs...)
	if err != nil {
		return a.fail(ctx, "switch_frame", chain.Name(), err)
	}
	if err := a.driver.EnterFrame(ctx, el.Node); err != nil {
		return a.fail(ctx, "switch_frame", el.String(), err)
	}
	a.logger.Info("Focused inside frame.", zap.String("target", chain.Name()))
	return nil
}

// SwitchToDefault returns lookups to the top-level document.
func (a *Actions) SwitchToDefault() {
	a.driver.ExitFrame()
}

// SwitchToWindow focuses the first window whose title contains title.
func (a *Actions) SwitchToWindow(ctx context.Context, title string) error {
	if err := a.driver.SwitchToWindow(ctx, title); err != nil {
		return a.fail(ctx, "switch_window", title, err)
	}
	return nil
}

// AddCookie injects a cookie for the current site and reloads so the page
// picks it up.
func (a *Actions) AddCookie(ctx context.Context, name, value string) error {
	domain := ""
	if loc, err := a.driver.Location(ctx); err == nil {
		if u, err := url.Parse(loc); err == nil {
			domain = u.Hostname()
		}
	}
	if err := a.driver.AddCookie(ctx, browser.Cookie{Name: name, Value: value, Domain: domain}); err != nil {
		return a.fail(ctx, "add_cookie", name, err)
	}
	if err := a.driver.Reload(ctx); err != nil {
		return a.fail(ctx, "add_cookie", name, fmt.Errorf("reload after cookie injection: %w", err))
	}
	a.logger.Info("Cookie added and page reloaded.", zap.String("cookie", name))
	return nil
}

// WaitForPageLoad blocks until the document has finished loading.
func (a *Actions) WaitForPageLoad(ctx context.Context) error {
	if err := a.driver.WaitForLoad(ctx); err != nil {
		return a.fail(ctx, "page_load", "", err)
	}
	return nil
}

// Title returns the page title, or "" when it cannot be read.
func (a *Actions) Title(ctx context.Context) string {
	title, err := a.driver.Title(ctx)
	if err != nil {
		a.logger.Warn("Title unavailable.", zap.Error(err))
		return ""
	}
	return title
}

// Screenshot captures the page under op and returns the artifact path.
func (a *Actions) Screenshot(ctx context.Context, op string) (string, error) {
	capCtx, cancel := captureContext(ctx)
	defer cancel()
	return a.capturer.Capture(capCtx, a.driver, op)
}

// fail captures evidence for a failed operation and wraps err.
func (a *Actions) fail(ctx context.Context, op, target string, err error) error {
	capCtx, cancel := captureContext(ctx)
	path, capErr := a.capturer.Capture(capCtx, a.driver, op)
	cancel()
	if capErr != nil {
		a.logger.Warn("Could not capture failure screenshot.", zap.String("op", op), zap.Error(capErr))
	}

	fields := []zap.Field{zap.String("op", op), zap.String("target", target), zap.String("screenshot", path), zap.Error(err)}
	var notFound *resolver.ElementNotFoundError
	if errors.As(err, &notFound) {
		fields = append(fields, zap.Strings("tried", notFound.Tried()))
	}
	a.logger.Error("Interaction failed.", fields...)

	return &InteractionError{Op: op, Target: target, Screenshot: path, Err: err}
}

// captureContext lets evidence be collected even when the operation failed
// because its own context expired.
func captureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(browser.Detach(ctx), captureTimeout)
}
