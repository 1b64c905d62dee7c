package api

import (
	"fmt"
	"time"
)

// ServerError is a 5xx answer from the backend.
type ServerError struct {
	Path      string
	Status    int
	RequestID string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server crash at %s: status %d (request id %s)", e.Path, e.Status, e.RequestID)
}

// SLAError means a response arrived, but slower than the configured budget.
type SLAError struct {
	Path    string
	Elapsed time.Duration
	SLA     time.Duration
}

func (e *SLAError) Error() string {
	return fmt.Sprintf("response from %s took %v, over the %v budget", e.Path, e.Elapsed, e.SLA)
}
