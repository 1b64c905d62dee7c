// Package retry decides whether a failed scenario is run again. It only
// answers the question; running the scenario is the caller's job.
package retry

import "fmt"

// DefaultMax is the default number of retries after the first failure, so a
// scenario runs at most three times.
const DefaultMax = 2

// State counts retries for one scenario invocation. A fresh State has made no
// retries. It is not safe for concurrent use; each scenario owns its own.
type State struct {
	Attempts int
	Max      int
}

// NewState returns a State allowing n retries. A negative n is treated as zero.
func NewState(n int) *State {
	if n < 0 {
		n = 0
	}
	return &State{Max: n}
}

// ShouldRetry reports whether the scenario should run again after a failure.
// It consumes one retry when it returns true.
func ShouldRetry(s *State) bool {
	if s.Attempts < s.Max {
		s.Attempts++
		return true
	}
	return false
}

// Remaining returns the retries left.
func (s *State) Remaining() int { return s.Max - s.Attempts }

// Outcome classifies a single scenario attempt for reporting.
type Outcome int

const (
	OutcomePass Outcome = iota
	// OutcomeFlake is a failure that will be retried. It is reported at low
	// severity so transient noise does not page anyone.
	OutcomeFlake
	// OutcomeFailure is a failure on the final attempt.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeFlake:
		return "flake"
	case OutcomeFailure:
		return "fail"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Classify maps an attempt's error and the retry decision to an Outcome.
func Classify(err error, willRetry bool) Outcome {
	switch {
	case err == nil:
		return OutcomePass
	case willRetry:
		return OutcomeFlake
	default:
		return OutcomeFailure
	}
}
