package store

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/bulwark/internal/reporting"
)

const flushTimeout = 30 * time.Second

// Reporter buffers the results of a run and writes them to the store when
// closed, so a slow database never stalls the scenarios themselves.
type Reporter struct {
	ctx   context.Context
	store *Store
	runID string

	mu      sync.Mutex
	results []*reporting.Result
}

var _ reporting.Reporter = (*Reporter)(nil)

// NewReporter creates a reporter recording into run runID. ctx bounds the
// final flush; canceling the run does not drop the results.
func NewReporter(ctx context.Context, s *Store, runID string) *Reporter {
	return &Reporter{ctx: context.WithoutCancel(ctx), store: s, runID: runID}
}

func (r *Reporter) Write(result *reporting.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *Reporter) Close() error {
	r.mu.Lock()
	results := r.results
	r.results = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.ctx, flushTimeout)
	defer cancel()
	return r.store.RecordResults(ctx, r.runID, results)
}
