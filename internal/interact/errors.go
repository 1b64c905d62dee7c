package interact

import (
	"fmt"
)

// InteractionError is returned when an operation fails after (or while)
// resolving its target. Screenshot is empty when capture itself failed.
type InteractionError struct {
	Op         string
	Target     string
	Screenshot string
	Err        error
}

func (e *InteractionError) Error() string {
	msg := fmt.Sprintf("interaction %s failed", e.Op)
	if e.Target != "" {
		msg += " on " + e.Target
	}
	if e.Screenshot != "" {
		msg += " (screenshot: " + e.Screenshot + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *InteractionError) Unwrap() error { return e.Err }
