package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
)

func TestClassifyRetryable(t *testing.T) {
	require.True(t, ClassifyRetryable(errs.New(errs.Network, "down")))
	require.False(t, ClassifyRetryable(errs.New(errs.NotFound, "missing")))
	require.False(t, ClassifyRetryable(nil))
	require.True(t, ClassifyRetryable(errors.New("connection refused by peer")))
	require.False(t, ClassifyRetryable(errors.New("totally opaque")))
}

func TestDelayForIsCappedAndNonDecreasing(t *testing.T) {
	p := NewRetryPolicy(5, 100, 400)
	var last time.Duration
	for attempt := 1; attempt <= 5; attempt++ {
		d := p.DelayFor(attempt)
		require.GreaterOrEqual(t, d, last)
		require.LessOrEqual(t, d, 400*time.Millisecond)
		last = d
	}
}

func TestFixedRetryPolicyDelayIsConstant(t *testing.T) {
	p := NewFixedRetryPolicy(4, 250)
	first := p.DelayFor(1)
	third := p.DelayFor(3)
	require.Equal(t, first, third)
}

func TestExecuteSucceedsWithoutRetry(t *testing.T) {
	p := NewRetryPolicy(3, 1, 2)
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestExecuteRetriesRetryableFailures(t *testing.T) {
	p := NewRetryPolicy(3, 1, 2)
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errs.New(errs.Network, "flaky")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestExecuteStopsOnPermanentFailure(t *testing.T) {
	p := NewRetryPolicy(5, 1, 2)
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return errs.New(errs.NotAuthorized, "forbidden")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.True(t, errs.Is(err, errs.NotAuthorized))
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	p := NewRetryPolicy(3, 1, 2)
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return errs.New(errs.Network, "down")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	p := NewRetryPolicy(5, 50, 100)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Execute(ctx, func() error {
		calls++
		cancel()
		return errs.New(errs.Network, "down")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
