// internal/preflight/breaker.go
package preflight

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTimeout bounds a probe when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Breaker gates a run on a one-time health probe. The first Gate call
// evaluates the endpoint; later calls return the same result. A failed probe
// aborts the process: there is no retry and no partial execution.
type Breaker struct {
	client  HTTPDoer
	timeout time.Duration
	logger  *zap.Logger
	exit    func(code int)

	once   sync.Once
	result HealthCheckResult
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithExit replaces the process exit used when the breaker trips.
func WithExit(fn func(code int)) Option {
	return func(b *Breaker) { b.exit = fn }
}

// WithClient replaces the HTTP client used for the probe.
func WithClient(c HTTPDoer) Option {
	return func(b *Breaker) { b.client = c }
}

// NewBreaker creates a breaker whose probe is bounded by timeout.
func NewBreaker(timeout time.Duration, logger *zap.Logger, opts ...Option) *Breaker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	b := &Breaker{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger.Named("circuit_breaker"),
		exit:    os.Exit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Gate probes endpoint once. On failure it logs a fatal diagnostic and exits
// the process; the result is still returned for callers whose exit func
// does not terminate.
func (b *Breaker) Gate(ctx context.Context, endpoint string) HealthCheckResult {
	b.once.Do(func() {
		b.logger.Info("Checking environment health.", zap.String("endpoint", endpoint))

		probeCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		b.result = CheckHealth(probeCtx, b.client, endpoint)

		if b.result.Healthy() {
			b.logger.Info("Environment healthy.",
				zap.String("endpoint", endpoint),
				zap.Int("status", b.result.Code),
				zap.Duration("elapsed", b.result.Elapsed))
			return
		}
		b.trip()
	})
	return b.result
}

func (b *Breaker) trip() {
	msg := "Circuit breaker triggered: environment returned a server error. Aborting run."
	if b.result.Status == StatusUnreachable {
		msg = "Circuit breaker triggered: environment unreachable. Aborting run."
	}
	b.logger.WithOptions(zap.WithFatalHook(exitHook(b.exit))).Fatal(msg,
		zap.String("endpoint", b.result.Endpoint),
		zap.Stringer("status", b.result.Status),
		zap.Int("code", b.result.Code),
		zap.Error(b.result.Err))
}

// exitHook runs the breaker's exit func after the fatal entry is written.
type exitHook func(code int)

func (h exitHook) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) { h(1) }
