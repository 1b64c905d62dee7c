package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func statusServer(t *testing.T, code int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// deadEndpoint returns the URL of a server that has already been shut down.
func deadEndpoint(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestCheckHealth(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		code   int
		status Status
	}{
		{"ok", http.StatusOK, StatusSuccess},
		{"client errors still mean the server is up", http.StatusNotFound, StatusSuccess},
		{"service unavailable", http.StatusServiceUnavailable, StatusServerError},
		{"internal error", http.StatusInternalServerError, StatusServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := statusServer(t, tt.code, nil)
			res := CheckHealth(ctx, srv.Client(), srv.URL)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, srv.URL, res.Endpoint)
		})
	}

	t.Run("server error carries the code", func(t *testing.T) {
		srv := statusServer(t, http.StatusBadGateway, nil)
		res := CheckHealth(ctx, srv.Client(), srv.URL)
		var se *ServerError
		require.ErrorAs(t, res.Err, &se)
		assert.Equal(t, http.StatusBadGateway, se.Code)
	})

	t.Run("connection refused is unreachable", func(t *testing.T) {
		res := CheckHealth(ctx, http.DefaultClient, deadEndpoint(t))
		assert.Equal(t, StatusUnreachable, res.Status)
		assert.Zero(t, res.Code)
		var ue *UnreachableError
		require.ErrorAs(t, res.Err, &ue)
		assert.True(t, errors.Is(res.Err, syscall.ECONNREFUSED))
	})

	t.Run("malformed endpoint is unreachable", func(t *testing.T) {
		res := CheckHealth(ctx, http.DefaultClient, "://nope")
		assert.Equal(t, StatusUnreachable, res.Status)
	})
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "serverError", StatusServerError.String())
	assert.Equal(t, "unreachable", StatusUnreachable.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func TestBreaker_Gate(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy environment proceeds", func(t *testing.T) {
		var hits atomic.Int32
		srv := statusServer(t, http.StatusOK, &hits)
		rec := &exitRecorder{}
		b := NewBreaker(0, zaptest.NewLogger(t), WithExit(rec.exit), WithClient(srv.Client()))

		res := b.Gate(ctx, srv.URL)
		assert.True(t, res.Healthy())
		assert.Empty(t, rec.codes)
	})

	t.Run("server error aborts the run", func(t *testing.T) {
		srv := statusServer(t, http.StatusServiceUnavailable, nil)
		rec := &exitRecorder{}
		core, logs := observer.New(zapcore.DebugLevel)
		b := NewBreaker(0, zap.New(core), WithExit(rec.exit), WithClient(srv.Client()))

		res := b.Gate(ctx, srv.URL)
		assert.Equal(t, StatusServerError, res.Status)
		assert.Equal(t, []int{1}, rec.codes)

		fatal := logs.FilterLevelExact(zapcore.FatalLevel).All()
		require.Len(t, fatal, 1)
		assert.Contains(t, fatal[0].Message, "server error")
		assert.Equal(t, int64(http.StatusServiceUnavailable), fatal[0].ContextMap()["code"])
	})

	t.Run("unreachable environment aborts the run", func(t *testing.T) {
		rec := &exitRecorder{}
		core, logs := observer.New(zapcore.DebugLevel)
		b := NewBreaker(0, zap.New(core), WithExit(rec.exit))

		res := b.Gate(ctx, deadEndpoint(t))
		assert.Equal(t, StatusUnreachable, res.Status)
		assert.Equal(t, []int{1}, rec.codes)
		assert.Equal(t, 1, logs.FilterMessageSnippet("unreachable").Len())
	})

	t.Run("evaluates exactly once under concurrency", func(t *testing.T) {
		var hits atomic.Int32
		srv := statusServer(t, http.StatusInternalServerError, &hits)
		rec := &exitRecorder{}
		b := NewBreaker(0, zaptest.NewLogger(t), WithExit(rec.exit), WithClient(srv.Client()))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := b.Gate(ctx, srv.URL)
				assert.Equal(t, StatusServerError, res.Status)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), hits.Load())
		assert.Equal(t, []int{1}, rec.codes)
	})
}
