// internal/browser/launcher.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/config"
)

// Launcher creates a fresh session for a unit.
type Launcher interface {
	Launch(ctx context.Context, unit UnitID) (*Session, error)
}

// ChromeLauncher starts one browser per session, either as a local process or
// on a remote DevTools endpoint.
type ChromeLauncher struct {
	browser  config.BrowserConfig
	timeouts config.TimeoutsConfig
	logger   *zap.Logger
}

// NewChromeLauncher creates a launcher from configuration.
func NewChromeLauncher(cfg config.Interface, logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{
		browser:  cfg.Browser(),
		timeouts: cfg.Timeouts(),
		logger:   logger.Named("launcher"),
	}
}

// Launch allocates a browser, opens a tab, and verifies it responds before
// handing it out. The session outlives ctx; only Close releases it.
func (l *ChromeLauncher) Launch(ctx context.Context, unit UnitID) (*Session, error) {
	allocCtx, allocCancel := l.allocator(Detach(ctx))
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(l.logger.Sugar().Errorf),
	)
	release := func() {
		tabCancel()
		allocCancel()
	}

	s := newSession(uuid.NewString(), unit, tabCtx, l.timeouts, l.logger)
	s.listen(tabCtx, l.browser.SniffNetwork)

	if err := l.start(ctx, tabCtx); err != nil {
		release()
		return nil, err
	}

	s.closeFn = func(context.Context) error {
		err := chromedp.Cancel(tabCtx)
		release()
		return err
	}

	l.logger.Info("Browser session launched.",
		zap.String("unit", string(unit)),
		zap.String("session_id", s.ID()),
		zap.String("mode", l.browser.Mode),
		zap.Bool("headless", l.browser.Headless))
	return s, nil
}

// start performs the first Run on the tab, which allocates the browser. The
// first Run must use the tab context itself: a deadline on it would kill the
// browser when it expired, so the launch timeout is enforced from outside.
func (l *ChromeLauncher) start(ctx context.Context, tabCtx context.Context) error {
	launchCtx, cancel := context.WithTimeout(ctx, l.timeouts.Launch)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("browser failed to start: %w", err)
		}
	case <-launchCtx.Done():
		return fmt.Errorf("browser failed to start within %v: %w", l.timeouts.Launch, launchCtx.Err())
	}

	probeCtx, stop := CombineContext(tabCtx, launchCtx)
	defer stop()

	actions := []chromedp.Action{chromedp.Navigate("about:blank")}
	if l.browser.Mode == config.ModeRemote {
		// Window flags do not apply to a browser we did not start.
		actions = append(actions, chromedp.EmulateViewport(int64(l.browser.WindowWidth), int64(l.browser.WindowHeight)))
	}
	if l.browser.SniffNetwork {
		actions = append(actions, network.Enable())
	}
	actions = append(actions, PersonaFromConfig(l.browser).Tasks()...)
	if err := chromedp.Run(probeCtx, actions...); err != nil {
		return fmt.Errorf("browser failed to respond: %w", err)
	}
	return nil
}

func (l *ChromeLauncher) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.browser.Mode == config.ModeRemote {
		return chromedp.NewRemoteAllocator(ctx, l.browser.RemoteURL)
	}
	return chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
}

// allocatorOptions assembles the flags for a local browser process.
func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}

	opts = append(opts,
		chromedp.Flag("headless", l.browser.Headless),
		chromedp.Flag("ignore-certificate-errors", l.browser.IgnoreTLSErrors),
		chromedp.Flag("disable-gpu", l.browser.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(l.browser.WindowWidth, l.browser.WindowHeight),
	)
	if l.browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.browser.ExecPath))
	}

	// Extra flags from config, e.g. "--lang=en-US" or "--start-maximized".
	for _, arg := range l.browser.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Containers (CI on Linux) need these to start Chrome at all.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}
