package resolver

import (
	"fmt"
	"strings"
)

// ElementNotFoundError means every descriptor in a chain failed to resolve.
type ElementNotFoundError struct {
	Chain    string
	Attempts []Attempt
}

// Tried returns the raw descriptors that were attempted, in order.
func (e *ElementNotFoundError) Tried() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Descriptor.Raw
	}
	return out
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("all locators failed for %s, priority list: %s", e.Chain, strings.Join(e.Tried(), ", "))
}

// Last returns the error from the final attempt.
func (e *ElementNotFoundError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}
