package preflight

import "fmt"

// UnreachableError means the probe could not reach the environment at all.
type UnreachableError struct {
	Endpoint string
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("environment unreachable: %s is down: %v", e.Endpoint, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// ServerError means the environment answered with a 5xx status.
type ServerError struct {
	Endpoint string
	Code     int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("environment unhealthy: %s returned %d", e.Endpoint, e.Code)
}
