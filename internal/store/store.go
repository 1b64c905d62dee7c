package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/reporting"
	"github.com/xkilldash9x/bulwark/internal/retry"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store keeps the history of runs and attempts in PostgreSQL so flaky
// scenarios can be tracked across runs.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// Run identifies one invocation of the suite.
type Run struct {
	ID          string
	Env         string
	ToolVersion string
	Started     time.Time
}

// Totals is the final tally of a run.
type Totals struct {
	Passed   int
	Flaky    int
	Failed   int
	Finished time.Time
}

// ScenarioStats aggregates the recorded history of one scenario.
type ScenarioStats struct {
	Scenario string
	Runs     int
	Flakes   int
	Failures int
	LastSeen time.Time
}

var resultColumns = []string{"run_id", "scenario", "unit", "attempt", "outcome", "message", "screenshot", "started_at", "duration_ms"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        env TEXT NOT NULL,
        tool_version TEXT NOT NULL,
        started_at TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ,
        passed INT NOT NULL DEFAULT 0,
        flaky INT NOT NULL DEFAULT 0,
        failed INT NOT NULL DEFAULT 0
    );`,
	`CREATE TABLE IF NOT EXISTS results (
        run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
        scenario TEXT NOT NULL,
        unit TEXT NOT NULL,
        attempt INT NOT NULL,
        outcome TEXT NOT NULL,
        message TEXT NOT NULL,
        screenshot TEXT NOT NULL,
        started_at TIMESTAMPTZ NOT NULL,
        duration_ms BIGINT NOT NULL,
        PRIMARY KEY (run_id, scenario, attempt)
    );`,
	`CREATE TABLE IF NOT EXISTS scenario_stats (
        scenario TEXT PRIMARY KEY,
        runs INT NOT NULL DEFAULT 0,
        flakes INT NOT NULL DEFAULT 0,
        failures INT NOT NULL DEFAULT 0,
        last_seen TIMESTAMPTZ NOT NULL
    );`,
}

const (
	sqlInsertRun = `
        INSERT INTO runs (id, env, tool_version, started_at)
        VALUES ($1, $2, $3, $4);
    `
	sqlFinishRun = `
        UPDATE runs SET finished_at = $2, passed = $3, flaky = $4, failed = $5
        WHERE id = $1;
    `
	sqlUpsertStats = `
        INSERT INTO scenario_stats (scenario, runs, flakes, failures, last_seen)
        VALUES ($1, 1, $2, $3, $4)
        ON CONFLICT (scenario) DO UPDATE SET
            runs = scenario_stats.runs + 1,
            flakes = scenario_stats.flakes + EXCLUDED.flakes,
            failures = scenario_stats.failures + EXCLUDED.failures,
            last_seen = EXCLUDED.last_seen;
    `
	sqlFlakiest = `
        SELECT scenario, runs, flakes, failures, last_seen
        FROM scenario_stats
        WHERE flakes > 0 OR failures > 0
        ORDER BY flakes DESC, failures DESC, scenario ASC
        LIMIT $1;
    `
)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the history tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// RecordRun inserts the row for a starting run.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if _, err := s.pool.Exec(ctx, sqlInsertRun, run.ID, run.Env, run.ToolVersion, run.Started.UTC()); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final tally of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, totals Totals) error {
	tag, err := s.pool.Exec(ctx, sqlFinishRun, runID, totals.Finished.UTC(), totals.Passed, totals.Flaky, totals.Failed)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to finish run %s: run not recorded", runID)
	}
	return nil
}

// RecordResults copies every attempt of a run and folds them into the
// per-scenario statistics, all in one transaction.
func (s *Store) RecordResults(ctx context.Context, runID string, results []*reporting.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.copyResults(ctx, tx, runID, results); err != nil {
		return err
	}
	if err := s.updateStats(ctx, tx, results); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) copyResults(ctx context.Context, tx pgx.Tx, runID string, results []*reporting.Result) error {
	rows := make([][]interface{}, len(results))
	for i, r := range results {
		rows[i] = []interface{}{
			runID, r.Scenario, r.Unit, r.Attempt, r.Outcome.String(),
			r.Message, r.Screenshot, r.Started.UTC(), r.Duration.Milliseconds(),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"results"}, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy results: %w", err)
	}
	if int(copyCount) != len(results) {
		return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(results), copyCount)
	}
	return nil
}

// updateStats queues one upsert per scenario. A scenario counts as a failure
// when its last attempt failed; every retried attempt counts as a flake.
func (s *Store) updateStats(ctx context.Context, tx pgx.Tx, results []*reporting.Result) error {
	type tally struct {
		flakes, failures int
		last             *reporting.Result
	}
	var order []string
	byScenario := make(map[string]*tally)
	for _, r := range results {
		t, ok := byScenario[r.Scenario]
		if !ok {
			t = &tally{}
			byScenario[r.Scenario] = t
			order = append(order, r.Scenario)
		}
		if r.Outcome == retry.OutcomeFlake {
			t.flakes++
		}
		if t.last == nil || r.Attempt >= t.last.Attempt {
			t.last = r
		}
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, name := range order {
		t := byScenario[name]
		if t.last.Outcome == retry.OutcomeFailure {
			t.failures = 1
		}
		batch.Queue(sqlUpsertStats, name, t.flakes, t.failures, now)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for _, name := range order {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to update stats for scenario %s: %w", name, err)
		}
	}
	return nil
}

// Flakiest returns the scenarios with the most recorded flakes.
func (s *Store) Flakiest(ctx context.Context, limit int) ([]ScenarioStats, error) {
	rows, err := s.pool.Query(ctx, sqlFlakiest, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenario stats: %w", err)
	}
	defer rows.Close()

	var stats []ScenarioStats
	for rows.Next() {
		var st ScenarioStats
		if err := rows.Scan(&st.Scenario, &st.Runs, &st.Flakes, &st.Failures, &st.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan scenario stats row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return stats, nil
}
