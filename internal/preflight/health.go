// internal/preflight/health.go
package preflight

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Status classifies a health probe.
type Status int

const (
	StatusSuccess Status = iota
	StatusServerError
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusServerError:
		return "serverError"
	case StatusUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// HTTPDoer is the part of *http.Client the probe needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HealthCheckResult is the outcome of a single probe.
type HealthCheckResult struct {
	Endpoint string
	Status   Status
	// Code is the HTTP status, zero when the endpoint was unreachable.
	Code    int
	Elapsed time.Duration
	// Err is an *UnreachableError or *ServerError when the probe failed.
	Err error
}

// Healthy reports whether the run may proceed.
func (r HealthCheckResult) Healthy() bool { return r.Status == StatusSuccess }

// CheckHealth issues one unauthenticated GET against endpoint. Any response
// below 500 counts as success; it is never retried.
func CheckHealth(ctx context.Context, client HTTPDoer, endpoint string) HealthCheckResult {
	res := HealthCheckResult{Endpoint: endpoint}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		res.Status = StatusUnreachable
		res.Err = &UnreachableError{Endpoint: endpoint, Err: err}
		return res
	}

	resp, err := client.Do(req)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Status = StatusUnreachable
		res.Err = &UnreachableError{Endpoint: endpoint, Err: err}
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.Code = resp.StatusCode
	if resp.StatusCode >= http.StatusInternalServerError {
		res.Status = StatusServerError
		res.Err = &ServerError{Endpoint: endpoint, Code: resp.StatusCode}
		return res
	}
	res.Status = StatusSuccess
	return res
}
