// Package runner executes scenarios in isolated browser sessions with a
// bounded retry policy and feeds every attempt to the reporters.
package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/bulwark/internal/artifact"
	"github.com/xkilldash9x/bulwark/internal/browser"
	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/interact"
	"github.com/xkilldash9x/bulwark/internal/reporting"
	"github.com/xkilldash9x/bulwark/internal/resolver"
	"github.com/xkilldash9x/bulwark/internal/retry"
)

// Scenario is one independent test case.
type Scenario struct {
	Name string
	Run  func(ctx context.Context, u *Unit) error
	// APIOnly scenarios talk to backends only; their units get no session.
	APIOnly bool
}

// Unit is the execution context of one scenario attempt. Its session is
// never shared with another unit.
type Unit struct {
	ID      browser.UnitID
	Session *browser.Session
	Actions *interact.Actions
	Logger  *zap.Logger
}

// Sessions hands out a dedicated session for the duration of fn.
type Sessions interface {
	WithSession(ctx context.Context, unit browser.UnitID, fn func(*browser.Session) error) error
}

// ActionsFactory builds the interaction façade for a freshly started session.
type ActionsFactory func(s *browser.Session) *interact.Actions

// NewActionsFactory binds the shared resolver and capturer to each session.
func NewActionsFactory(res *resolver.Resolver, capturer *artifact.Capturer, timeouts config.TimeoutsConfig, logger *zap.Logger) ActionsFactory {
	return func(s *browser.Session) *interact.Actions {
		return interact.New(s, res, capturer, timeouts, logger.With(zap.String("unit", string(s.Unit()))))
	}
}

// Summary is the tally of a run.
type Summary struct {
	RunID    string
	Passed   int
	Flaky    int
	Failed   int
	Attempts int
	// Failures lists the scenarios that failed on their final attempt, sorted.
	Failures []string
	Duration time.Duration
}

// OK reports whether every scenario eventually passed.
func (s Summary) OK() bool { return s.Failed == 0 }

// Runner runs scenarios.
type Runner struct {
	sessions    Sessions
	actions     ActionsFactory
	reporter    reporting.Reporter
	maxRetries  int
	delay       time.Duration
	concurrency int
	runID       string
	logger      *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithConcurrency overrides runner.concurrency.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New creates a runner from configuration.
func New(sessions Sessions, actions ActionsFactory, reporter reporting.Reporter, cfg config.Interface, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		sessions:    sessions,
		actions:     actions,
		reporter:    reporter,
		maxRetries:  cfg.Retry().Max,
		delay:       cfg.Retry().Delay,
		concurrency: cfg.Runner().Concurrency,
		runID:       uuid.NewString(),
		logger:      logger.Named("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	return r
}

// RunID identifies this run in reports and the result store.
func (r *Runner) RunID() string { return r.runID }

// Run executes every scenario, at most concurrency at a time. Scenario
// failures are reported, not returned; the error is non-nil only when the run
// itself was interrupted.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: r.runID}
	var mu sync.Mutex

	r.logger.Info("Starting run.",
		zap.String("run_id", r.runID),
		zap.Int("scenarios", len(scenarios)),
		zap.Int("concurrency", r.concurrency),
		zap.Int("max_retries", r.maxRetries))

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for _, sc := range scenarios {
		sc := sc
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			attempts, outcome := r.runScenario(ctx, sc)

			mu.Lock()
			defer mu.Unlock()
			summary.Attempts += attempts
			switch {
			case outcome == retry.OutcomeFailure:
				summary.Failed++
				summary.Failures = append(summary.Failures, sc.Name)
			case attempts > 1:
				summary.Flaky++
				summary.Passed++
			default:
				summary.Passed++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(summary.Failures)
	summary.Duration = time.Since(start)
	r.logger.Info("Run finished.",
		zap.String("run_id", r.runID),
		zap.Int("passed", summary.Passed),
		zap.Int("flaky", summary.Flaky),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// runScenario drives the retry loop of one scenario and returns the number
// of attempts and the final outcome.
func (r *Runner) runScenario(ctx context.Context, sc Scenario) (int, retry.Outcome) {
	state := retry.NewState(r.maxRetries)
	logger := r.logger.With(zap.String("scenario", sc.Name))

	for attempt := 1; ; attempt++ {
		res := &reporting.Result{
			RunID:    r.runID,
			Scenario: sc.Name,
			Unit:     unitID(sc.Name, attempt),
			Attempt:  attempt,
			Started:  time.Now(),
		}

		err := r.attempt(ctx, sc, res, state)
		res.Duration = time.Since(res.Started)

		if err != nil && ctx.Err() != nil {
			// Interrupted runs are final regardless of the remaining budget.
			res.Outcome = retry.OutcomeFailure
		}
		if werr := r.reporter.Write(res); werr != nil {
			logger.Warn("Failed to report result.", zap.Error(werr))
		}

		switch res.Outcome {
		case retry.OutcomePass:
			logger.Info("Scenario passed.", zap.Int("attempt", attempt))
			return attempt, res.Outcome
		case retry.OutcomeFlake:
			logger.Warn("Scenario flaked; retrying.", zap.Int("attempt", attempt), zap.Int("retries_left", state.Remaining()), zap.Error(err))
			if !sleep(ctx, r.delay) {
				return attempt, retry.OutcomeFailure
			}
		default:
			logger.Error("Scenario failed.", zap.Int("attempt", attempt), zap.String("screenshot", res.Screenshot), zap.Error(err))
			return attempt, retry.OutcomeFailure
		}
	}
}

// attempt runs sc once in a fresh unit. On failure it consults the retry
// policy; a final failure gets a screenshot and stack before the session is
// released.
func (r *Runner) attempt(ctx context.Context, sc Scenario, res *reporting.Result, state *retry.State) error {
	var runErr error
	body := func(s *browser.Session) error {
		unit := &Unit{
			ID:      browser.UnitID(res.Unit),
			Session: s,
			Logger:  r.logger.With(zap.String("scenario", sc.Name), zap.String("unit", res.Unit)),
		}
		if !sc.APIOnly && r.actions != nil {
			unit.Actions = r.actions(s)
		}

		res.Stack, runErr = invoke(ctx, sc, unit)
		willRetry := runErr != nil && retry.ShouldRetry(state)
		res.Outcome = retry.Classify(runErr, willRetry)
		if runErr != nil {
			res.Message = runErr.Error()
		}
		if res.Outcome == retry.OutcomeFailure {
			res.Screenshot = r.evidence(ctx, unit, sc.Name, runErr)
		}
		return runErr
	}

	var err error
	if sc.APIOnly {
		err = body(nil)
	} else {
		err = r.sessions.WithSession(ctx, browser.UnitID(res.Unit), body)
	}

	if err != nil && runErr == nil {
		// The unit never started, or its session failed to come up.
		runErr = err
		willRetry := retry.ShouldRetry(state)
		res.Outcome = retry.Classify(err, willRetry)
		res.Message = err.Error()
	}
	return runErr
}

// invoke calls the scenario, turning a panic into an error with its stack.
func invoke(ctx context.Context, sc Scenario, u *Unit) (stack string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario panicked: %v", p)
			stack = string(debug.Stack())
		}
	}()
	return "", sc.Run(ctx, u)
}

// evidence returns the screenshot attached to a final failure. An interaction
// failure already carries one; anything else is captured now.
func (r *Runner) evidence(ctx context.Context, u *Unit, name string, err error) string {
	var ie *interact.InteractionError
	if errors.As(err, &ie) && ie.Screenshot != "" {
		return ie.Screenshot
	}
	if u.Actions == nil {
		return ""
	}
	path, capErr := u.Actions.Screenshot(ctx, "failure_"+name)
	if capErr != nil {
		u.Logger.Warn("Could not capture failure screenshot.", zap.Error(capErr))
		return ""
	}
	return path
}

var unitSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func unitID(scenario string, attempt int) string {
	return fmt.Sprintf("%s-%d-%s", unitSanitizer.ReplaceAllString(scenario, "_"), attempt, uuid.NewString()[:8])
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Select keeps the scenarios named in only, in their original order. An
// empty only keeps everything; an unknown name is an error.
func Select(scenarios []Scenario, only []string) ([]Scenario, error) {
	if len(only) == 0 {
		return scenarios, nil
	}
	known := make(map[string]bool, len(scenarios))
	for _, sc := range scenarios {
		known[sc.Name] = true
	}
	want := make(map[string]bool, len(only))
	for _, name := range only {
		if !known[name] {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		want[name] = true
	}
	var picked []Scenario
	for _, sc := range scenarios {
		if want[sc.Name] {
			picked = append(picked, sc)
		}
	}
	return picked, nil
}
