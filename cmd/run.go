// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/api"
	"github.com/xkilldash9x/bulwark/internal/artifact"
	"github.com/xkilldash9x/bulwark/internal/booker"
	"github.com/xkilldash9x/bulwark/internal/browser"
	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/demoblaze"
	"github.com/xkilldash9x/bulwark/internal/observability"
	"github.com/xkilldash9x/bulwark/internal/preflight"
	"github.com/xkilldash9x/bulwark/internal/reporting"
	"github.com/xkilldash9x/bulwark/internal/resolver"
	"github.com/xkilldash9x/bulwark/internal/runner"
	"github.com/xkilldash9x/bulwark/internal/store"
)

// errScenariosFailed marks a run that completed but had failing scenarios.
var errScenariosFailed = errors.New("scenarios failed")

type runOptions struct {
	only        []string
	formats     []string
	concurrency int
	list        bool
}

// runDeps holds the collaborators the run command creates. Tests replace
// them to avoid launching browsers, exiting the process or dialing a database.
type runDeps struct {
	stores   storeProvider
	launcher func(cfg config.Interface, logger *zap.Logger) browser.Launcher
	exit     func(code int)
}

func defaultRunDeps() runDeps {
	return runDeps{
		stores: NewStoreProvider(),
		launcher: func(cfg config.Interface, logger *zap.Logger) browser.Launcher {
			return browser.NewChromeLauncher(cfg, logger)
		},
		exit: os.Exit,
	}
}

func newRunCmd(deps runDeps) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the regression suite",
		Long: `Checks the backend is healthy, then runs every scenario in its own browser
session. Flaky attempts are retried up to retry.max times; screenshots of
final failures are written to artifacts.screenshot_dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			if opts.list {
				scenarios, err := buildScenarios(ctx, cfg, noGate, logger)
				if err != nil {
					return err
				}
				for _, sc := range scenarios {
					fmt.Fprintln(cmd.OutOrStdout(), sc.Name)
				}
				return nil
			}

			summary, err := runSuite(ctx, cfg, opts, deps, logger)
			if err != nil {
				return err
			}
			if !summary.OK() {
				return fmt.Errorf("%w: %s", errScenariosFailed, strings.Join(summary.Failures, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "run only the named scenarios")
	cmd.Flags().StringSliceVarP(&opts.formats, "format", "f", nil, "report formats (console, junit, html); defaults to artifacts.report_formats")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "scenarios run in parallel; defaults to runner.concurrency")
	cmd.Flags().BoolVar(&opts.list, "list", false, "list the scenarios instead of running them")
	return cmd
}

// runSuite wires the engine together and executes the selected scenarios.
func runSuite(ctx context.Context, cfg config.Interface, opts runOptions, deps runDeps, logger *zap.Logger) (runner.Summary, error) {
	newGate := noGate
	if cfg.Preflight().Enabled {
		newGate = func() api.Gate {
			return preflight.NewBreaker(cfg.Preflight().Timeout, logger, preflight.WithExit(deps.exit))
		}
	}

	scenarios, err := buildScenarios(ctx, cfg, newGate, logger)
	if err != nil {
		return runner.Summary{}, err
	}
	if scenarios, err = runner.Select(scenarios, opts.only); err != nil {
		return runner.Summary{}, err
	}

	formats := opts.formats
	if len(formats) == 0 {
		formats = cfg.Artifacts().ReportFormats
	}
	reporters, err := buildReporters(formats, cfg.Artifacts().ReportDir)
	if err != nil {
		return runner.Summary{}, err
	}

	runID := uuid.NewString()
	history, closeHistory := openHistory(ctx, cfg, deps.stores, runID, logger)
	defer closeHistory()
	if history != nil {
		reporters = append(reporters, store.NewReporter(ctx, history, runID))
	}

	manager := browser.NewManager(deps.launcher(cfg, logger), logger)
	stopSweep := manager.SweepOnCancel(ctx)
	defer stopSweep()

	actions := runner.NewActionsFactory(
		resolver.New(cfg.Timeouts().Probe, logger),
		artifact.NewCapturer(cfg.Artifacts().ScreenshotDir, logger),
		cfg.Timeouts(),
		logger,
	)
	r := runner.New(manager, actions, reporters, cfg, logger,
		runner.WithRunID(runID),
		runner.WithConcurrency(opts.concurrency))

	summary, runErr := r.Run(ctx, scenarios)

	closeErr := reporters.Close()
	if closeErr != nil {
		logger.Error("Failed to finalize reports.", zap.Error(closeErr))
	}
	if history != nil {
		totals := store.Totals{Passed: summary.Passed, Flaky: summary.Flaky, Failed: summary.Failed, Finished: time.Now()}
		if err := history.FinishRun(context.WithoutCancel(ctx), runID, totals); err != nil {
			logger.Warn("Failed to record run totals.", zap.Error(err))
		}
	}
	if err := manager.Sweep(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("Sessions left open after the run could not all be closed.", zap.Error(err))
	}
	return summary, errors.Join(runErr, closeErr)
}

// gateFactory returns the pre-flight check for one API client. A breaker
// answers only its first probe, so every client gets its own.
type gateFactory func() api.Gate

func noGate() api.Gate { return nil }

// buildScenarios creates the API clients, each behind a gate from newGate,
// and returns the scenarios of every configured suite.
func buildScenarios(ctx context.Context, cfg config.Interface, newGate gateFactory, logger *zap.Logger) ([]runner.Scenario, error) {
	repo, err := demoblaze.Locators(cfg.Locators().File)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(ctx, cfg.API(), demoblaze.ProjectName, newGate(), logger)
	if err != nil {
		return nil, err
	}
	suite := demoblaze.NewSuite(repo, cfg.Runner(), demoblaze.NewAuthClient(client, logger), demoblaze.NewCartClient(client, logger), logger)

	if file := cfg.Runner().DataFile; file != "" {
		cases, err := demoblaze.LoadProductCases(file)
		if err != nil {
			return nil, err
		}
		suite.WithProductCases(cases)
	}
	scenarios := suite.Scenarios()

	project, err := cfg.API().Project(booker.ProjectName)
	if err != nil {
		logger.Info("No reservation backend configured; booking scenarios are skipped.")
		return scenarios, nil
	}
	bookerClient, err := api.NewClient(ctx, cfg.API(), booker.ProjectName, newGate(), logger)
	if err != nil {
		return nil, err
	}
	bookings := booker.NewSuite(project,
		booker.NewAuthClient(bookerClient, logger),
		booker.NewBookingClient(bookerClient, logger),
		booker.NewGenerator(0),
		logger)
	return append(scenarios, bookings.Scenarios()...), nil
}

// buildReporters creates one reporter per format.
func buildReporters(formats []string, reportDir string) (reporting.Multi, error) {
	var reporters reporting.Multi
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		r, err := reporting.New(format, reporting.DefaultPath(format, reportDir), Version)
		if err != nil {
			_ = reporters.Close()
			return nil, err
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}

// openHistory records the start of the run when a database is configured.
// History is best effort: a store that cannot be opened only costs the record.
func openHistory(ctx context.Context, cfg config.Interface, provider storeProvider, runID string, logger *zap.Logger) (*store.Store, func()) {
	noop := func() {}
	if cfg.Database().URL == "" {
		return nil, noop
	}

	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		logger.Warn("Result history disabled for this run.", zap.Error(err))
		return nil, noop
	}
	run := store.Run{ID: runID, Env: cfg.Runner().Env, ToolVersion: Version, Started: time.Now()}
	if err := s.RecordRun(ctx, run); err != nil {
		logger.Warn("Result history disabled for this run.", zap.Error(err))
		cleanup()
		return nil, noop
	}
	return s, cleanup
}
