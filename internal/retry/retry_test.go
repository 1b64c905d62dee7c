package retry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	for _, n := range []int{0, 1, DefaultMax, 5} {
		s := NewState(n)
		assert.Equal(t, 0, s.Attempts, "fresh state starts at zero")

		trues := 0
		for i := 0; i < n+3; i++ {
			if ShouldRetry(s) {
				trues++
			}
		}
		assert.Equal(t, n, trues, "true exactly max times (max=%d)", n)
		assert.Equal(t, n, s.Attempts)
		assert.False(t, ShouldRetry(s), "stays exhausted")
		assert.Zero(t, s.Remaining())
	}
}

func TestShouldRetry_Sequence(t *testing.T) {
	s := NewState(DefaultMax)
	assert.True(t, ShouldRetry(s))
	assert.Equal(t, 1, s.Remaining())
	assert.True(t, ShouldRetry(s))
	assert.False(t, ShouldRetry(s))
}

func TestNewState_NegativeMax(t *testing.T) {
	s := NewState(-3)
	assert.False(t, ShouldRetry(s))
}

func TestClassify(t *testing.T) {
	boom := errors.New("boom")
	assert.Equal(t, OutcomePass, Classify(nil, false))
	assert.Equal(t, OutcomePass, Classify(nil, true))
	assert.Equal(t, OutcomeFlake, Classify(boom, true))
	assert.Equal(t, OutcomeFailure, Classify(boom, false))

	assert.Equal(t, "pass", OutcomePass.String())
	assert.Equal(t, "flake", OutcomeFlake.String())
	assert.Equal(t, "fail", OutcomeFailure.String())
	assert.Equal(t, "Outcome(7)", Outcome(7).String())
}
