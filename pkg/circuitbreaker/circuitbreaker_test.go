package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote down")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("progress-api", WithFailureThreshold(2))

	for i := 0; i < 2; i++ {
		require.NoError(t, cb.Allow())
		cb.Record(errRemote)
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	notFound := errors.New("404")
	cb := New("progress-api",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, notFound) }),
	)

	require.NoError(t, cb.Allow())
	cb.Record(notFound)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Counts().TotalSuccesses)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	var transitions []State
	cb := New("progress-api",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)
	cb.now = func() time.Time { return now }

	require.NoError(t, cb.Allow())
	cb.Record(errRemote)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	assert.ErrorIs(t, cb.Allow(), ErrTooManyRequests)
	cb.Record(nil)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := New("progress-api", WithFailureThreshold(1), WithTimeout(time.Second))
	cb.now = func() time.Time { return now }

	require.NoError(t, cb.Allow())
	cb.Record(errRemote)

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())
	cb.Record(errRemote)

	assert.Equal(t, StateOpen, cb.State())
}
