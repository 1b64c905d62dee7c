// internal/browser/session.go
// A Session is one isolated browser tab owned by exactly one execution unit.
// It exposes the native primitives the resolver and the interaction layer are
// built on: node queries, clicks, typing, frames, windows, dialogs, cookies,
// and screenshots. Every primitive runs under the caller's context combined
// with the tab context, so a timed-out operation never tears down the tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/locator"
)

// UnitID identifies the execution unit that owns a session.
type UnitID string

// ErrSessionClosed is returned by primitives invoked after Close.
var ErrSessionClosed = errors.New("browser session is closed")

// Cookie is a cookie to inject into the current browsing context.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Session is a single browser tab bound to one unit.
type Session struct {
	id       string
	unit     UnitID
	logger   *zap.Logger
	timeouts config.TimeoutsConfig

	mu     sync.Mutex
	tabCtx context.Context
	// frame scopes CSS queries to an iframe's document; nil means the top document.
	frame *cdp.Node
	// extra holds cancel funcs for windows attached with SwitchToWindow.
	extra []context.CancelFunc

	dialogs *dialogTracker

	closeFn   func(ctx context.Context) error
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func newSession(id string, unit UnitID, tabCtx context.Context, timeouts config.TimeoutsConfig, logger *zap.Logger) *Session {
	return &Session{
		id:       id,
		unit:     unit,
		tabCtx:   tabCtx,
		timeouts: timeouts,
		logger:   logger.Named("session").With(zap.String("session_id", id), zap.String("unit", string(unit))),
		dialogs:  newDialogTracker(),
		closed:   make(chan struct{}),
	}
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Unit() UnitID        { return s.unit }
func (s *Session) Logger() *zap.Logger { return s.logger }

// Alive reports whether the session is usable: not closed, and its tab has
// not been torn down underneath it.
func (s *Session) Alive() bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	return s.tab().Err() == nil
}

func (s *Session) tab() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabCtx
}

// run executes actions on the active tab under ctx's deadline and cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	runCtx, cancel := CombineContext(s.tab(), ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// listen attaches the dialog tracker, and the network sniffer when enabled,
// to the active tab.
func (s *Session) listen(ctx context.Context, sniff bool) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			s.logger.Debug("Dialog opened.", zap.String("type", e.Type.String()), zap.String("message", e.Message))
			s.dialogs.open(e)
		case *page.EventJavascriptDialogClosed:
			s.dialogs.clear()
		case *network.EventResponseReceived:
			if sniff {
				logFailedResponse(s.logger, e)
			}
		}
	})
}

func (s *Session) queryOptions(q locator.Query) (string, []chromedp.QueryOption) {
	sel, opts := selector(q)
	s.mu.Lock()
	frame := s.frame
	s.mu.Unlock()
	if frame != nil && q.Strategy != locator.StrategyXPath && q.Strategy != locator.StrategyLinkText {
		opts = append(opts, chromedp.FromNode(frame))
	}
	return sel, opts
}

// Navigate loads url in the active tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.timeouts.Navigation)
	defer cancel()

	s.logger.Info("Navigating.", zap.String("url", url))
	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, s.timeouts.Navigation, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, chromedp.Reload())
}

// WaitVisible blocks until q matches a visible node.
func (s *Session) WaitVisible(ctx context.Context, q locator.Query) (*cdp.Node, error) {
	sel, opts := s.queryOptions(q)
	var nodes []*cdp.Node
	opts = append(opts, chromedp.NodeVisible)
	if err := s.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no node matched %s", q)
	}
	return nodes[0], nil
}

// Count returns the number of nodes currently matching q.
func (s *Session) Count(ctx context.Context, q locator.Query) (int, error) {
	sel, opts := s.queryOptions(q)
	var nodes []*cdp.Node
	opts = append(opts, chromedp.AtLeast(0))
	if err := s.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func ids(n *cdp.Node) []cdp.NodeID { return []cdp.NodeID{n.NodeID} }

// WaitClickable waits until n is visible and enabled.
func (s *Session) WaitClickable(ctx context.Context, n *cdp.Node) error {
	return s.run(ctx,
		chromedp.WaitVisible(ids(n), chromedp.ByNodeID),
		chromedp.WaitEnabled(ids(n), chromedp.ByNodeID),
	)
}

// Click dispatches a native mouse click on n. A click that opens a dialog is
// reported as done as soon as the dialog appears, since the browser holds the
// input event until the dialog is handled.
func (s *Session) Click(ctx context.Context, n *cdp.Node) error {
	opened := s.dialogs.signal()
	done := make(chan error, 1)
	go func() {
		done <- s.run(ctx, chromedp.Click(ids(n), chromedp.ByNodeID))
	}()

	select {
	case err := <-done:
		return err
	case <-opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JSClick clicks n through script, bypassing overlays that intercept pointer events.
func (s *Session) JSClick(ctx context.Context, n *cdp.Node) error {
	return s.callOnNode(ctx, n, `function() { this.click(); }`, nil)
}

// Type clears n and sends text to it.
func (s *Session) Type(ctx context.Context, n *cdp.Node, text string) error {
	return s.run(ctx,
		chromedp.Clear(ids(n), chromedp.ByNodeID),
		chromedp.SendKeys(ids(n), text, chromedp.ByNodeID),
	)
}

// Text returns the visible text of n.
func (s *Session) Text(ctx context.Context, n *cdp.Node) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Text(ids(n), &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

const jsDisplayed = `function() {
	const style = window.getComputedStyle(this);
	const rect = this.getBoundingClientRect();
	return style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0;
}`

// Displayed reports whether n is rendered and visible.
func (s *Session) Displayed(ctx context.Context, n *cdp.Node) (bool, error) {
	var visible bool
	if err := s.callOnNode(ctx, n, jsDisplayed, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

const jsSelectByText = `function(text) {
	for (const opt of this.options || []) {
		if (opt.text.trim() === text) {
			this.value = opt.value;
			opt.selected = true;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}
	}
	return false;
}`

// SelectByText selects the option of the <select> n whose visible text is text.
func (s *Session) SelectByText(ctx context.Context, n *cdp.Node, text string) error {
	var found bool
	if err := s.callOnNode(ctx, n, jsSelectByText, &found, strings.TrimSpace(text)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no option with visible text %q", text)
	}
	return nil
}

// callOnNode runs fn with this bound to the remote object behind n.
func (s *Session) callOnNode(ctx context.Context, n *cdp.Node, fn string, res interface{}, args ...interface{}) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(n.NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve node %d: %w", n.NodeID, err)
		}
		// Released on a best effort basis; navigation invalidates the object anyway.
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		return chromedp.CallFunctionOn(fn, res,
			func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
				return p.WithObjectID(obj.ObjectID)
			},
			args...,
		).Do(ctx)
	}))
}

// EnterFrame scopes subsequent CSS-family queries to the document of the
// iframe n.
func (s *Session) EnterFrame(_ context.Context, n *cdp.Node) error {
	name := strings.ToUpper(n.NodeName)
	if name != "IFRAME" && name != "FRAME" {
		return fmt.Errorf("node %s is not a frame", n.NodeName)
	}
	s.mu.Lock()
	s.frame = n
	s.mu.Unlock()
	return nil
}

// ExitFrame returns query scope to the top-level document.
func (s *Session) ExitFrame() {
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
}

// SwitchToWindow makes the first page target whose title contains title the
// active tab.
func (s *Session) SwitchToWindow(ctx context.Context, title string) error {
	targets, err := chromedp.Targets(s.tab())
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}

	for _, t := range targets {
		if t.Type != "page" || !strings.Contains(t.Title, title) {
			continue
		}
		return s.attach(ctx, t)
	}
	return fmt.Errorf("no window with title containing %q", title)
}

func (s *Session) attach(ctx context.Context, t *target.Info) error {
	winCtx, cancel := chromedp.NewContext(s.tab(), chromedp.WithTargetID(t.TargetID))
	runCtx, stop := CombineContext(winCtx, ctx)
	defer stop()
	if err := chromedp.Run(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to attach to window %q: %w", t.Title, err)
	}

	s.mu.Lock()
	s.tabCtx = winCtx
	s.frame = nil
	s.extra = append(s.extra, cancel)
	s.mu.Unlock()

	s.listen(winCtx, false)
	s.logger.Info("Switched window.", zap.String("title", t.Title))
	return nil
}

// WaitDialog blocks until a dialog is open or ctx is done.
func (s *Session) WaitDialog(ctx context.Context) (Dialog, error) {
	return s.dialogs.wait(ctx)
}

// HandleDialog accepts or dismisses the open dialog.
func (s *Session) HandleDialog(ctx context.Context, accept bool) error {
	if err := s.run(ctx, page.HandleJavaScriptDialog(accept)); err != nil {
		return fmt.Errorf("failed to handle dialog: %w", err)
	}
	s.dialogs.clear()
	return nil
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// AddCookie injects c into the browser.
func (s *Session) AddCookie(ctx context.Context, c Cookie) error {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookie(c.Name, c.Value).WithDomain(c.Domain).WithPath(path).Do(ctx)
	}))
}

// WaitForLoad polls until document.readyState is "complete".
func (s *Session) WaitForLoad(ctx context.Context) error {
	var ready bool
	return s.run(ctx, chromedp.Poll(`document.readyState === "complete"`, &ready,
		chromedp.WithPollingTimeout(s.timeouts.PageLoad),
		chromedp.WithPollingInterval(100*time.Millisecond),
	))
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// Location returns the current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Close releases the tab and its browser. It is safe to call more than once;
// only the first call does any work. Close gives up when ctx is done and
// reports the context error, leaving the rest of teardown to the process exit.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		extra := s.extra
		s.extra = nil
		s.mu.Unlock()
		for _, cancel := range extra {
			cancel()
		}

		if s.closeFn == nil {
			return
		}
		done := make(chan error, 1)
		go func() { done <- s.closeFn(Detach(ctx)) }()

		select {
		case s.closeErr = <-done:
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("session %s did not close in time: %w", s.id, ctx.Err())
		}
		if s.closeErr != nil {
			s.logger.Warn("Session closed with error.", zap.Error(s.closeErr))
		} else {
			s.logger.Debug("Session closed.")
		}
	})
	return s.closeErr
}
