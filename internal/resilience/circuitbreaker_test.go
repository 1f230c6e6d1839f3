package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, 2, time.Minute)
	require.Equal(t, Closed, b.State())

	for i := 0; i < 3; i++ {
		require.NoError(t, b.AllowRequest())
		b.RecordFailure()
	}
	require.Equal(t, Open, b.State())
	require.True(t, errs.Is(b.AllowRequest(), errs.CircuitOpen))
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	b := NewCircuitBreaker(1, 2, time.Minute)
	require.NoError(t, b.AllowRequest())
	b.RecordFailure()
	require.Equal(t, Open, b.State())

	clock := time.Now().Add(2 * time.Minute)
	b.now = func() time.Time { return clock }

	require.NoError(t, b.AllowRequest())
	require.Equal(t, HalfOpen, b.State())

	require.Error(t, b.AllowRequest(), "a second concurrent half-open probe should be rejected")

	b.RecordSuccess()
	require.Equal(t, HalfOpen, b.State())
	b.RecordSuccess()
	require.Equal(t, Closed, b.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 2, time.Minute)
	b.RecordFailure()
	clock := time.Now().Add(2 * time.Minute)
	b.now = func() time.Time { return clock }
	require.NoError(t, b.AllowRequest())
	require.Equal(t, HalfOpen, b.State())

	b.RecordFailure()
	require.Equal(t, Open, b.State())
}

func TestCircuitBreakerRecordResultIgnoresNonCountedKinds(t *testing.T) {
	b := NewCircuitBreaker(1, 2, time.Minute)
	b.RecordResult(errs.New(errs.NotFound, "missing"))
	require.Equal(t, Closed, b.State())
	require.Equal(t, 0, b.FailureCount())

	b.RecordResult(errs.New(errs.Network, "down"))
	require.Equal(t, Open, b.State())
}
