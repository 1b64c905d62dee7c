// File: cmd/store.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/observability"
	"github.com/xkilldash9x/bulwark/internal/store"
)

// storeProvider opens the result-history store. Tests inject a provider
// backed by a mock pool instead of a live database.
type storeProvider interface {
	// Create returns the store and a cleanup func releasing its connections.
	Create(ctx context.Context, cfg config.Interface) (*store.Store, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider that connects to PostgreSQL.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to database.url and makes sure the history schema exists.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (*store.Store, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (%s_DATABASE_URL)", envPrefix)
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// newHistoryCmd reports the scenarios with the worst flake record.
func newHistoryCmd(provider storeProvider) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the flakiest scenarios recorded in the result store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			s, cleanup, err := provider.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := s.Flakiest(ctx, limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of scenarios to list")
	return cmd
}

func printHistory(out io.Writer, stats []store.ScenarioStats) {
	if len(stats) == 0 {
		fmt.Fprintln(out, color.GreenString("No flaky or failing scenarios recorded."))
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tRUNS\tFLAKES\tFAILURES\tLAST SEEN")
	for _, st := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", st.Scenario, st.Runs, st.Flakes, st.Failures, st.LastSeen.UTC().Format(time.RFC3339))
	}
	w.Flush()
}
