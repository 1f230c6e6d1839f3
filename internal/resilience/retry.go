// Package resilience implements the network-resilience core: typed retry
// with exponential backoff, a circuit breaker, and a connectivity probe.
// Retry and the circuit breaker never touch the network themselves —
// callers hand them fallible closures or report outcomes, and they decide
// whether, and how long, to wait before calling again. Only the
// connectivity probe dials its configured endpoint.
package resilience

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/oxlock/oxlock/internal/errs"
)

// legacyRetryableSubstrings is the deprecated fallback classifier named in spec §9:
// the typed errs.Kind is always consulted first; this only bridges
// backends (e.g. raw subprocess stderr) that return opaque errors.
var legacyRetryableSubstrings = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"temporary failure",
	"too many requests",
	"service unavailable",
	"gateway timeout",
	"no route to host",
	"broken pipe",
	"eagain",
	"econnrefused",
	"etimedout",
	"enotfound",
}

// ClassifyRetryable decides whether err should be retried. The typed Kind
// takes precedence; an error with no Kind (i.e. Unknown) falls back to the
// substring matcher, and anything matching neither is non-retryable by
// fail-safe default.
func ClassifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	kind := errs.KindOf(err)
	if kind != errs.Unknown {
		return kind.Retryable()
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range legacyRetryableSubstrings {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Default retry profile per spec §4.4.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelayMS  = 2000
	DefaultMaxDelayMS   = 16000
)

// RetryPolicy wraps a fallible operation in retry-with-backoff. It is
// immutable after construction.
type RetryPolicy struct {
	maxAttempts int
	baseDelayMS int64
	maxDelayMS  int64
	fixedDelay  bool
	logger      *zap.SugaredLogger
}

// NewRetryPolicy builds an exponential-backoff policy. maxAttempts,
// baseDelayMS and maxDelayMS are immutable once constructed.
func NewRetryPolicy(maxAttempts int, baseDelayMS, maxDelayMS int64) *RetryPolicy {
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelayMS: baseDelayMS,
		maxDelayMS:  maxDelayMS,
		logger:      zap.NewNop().Sugar(),
	}
}

// NewFixedRetryPolicy builds a policy whose delay is constant across
// attempts (the "fixed delay" variant named in spec §4.4).
func NewFixedRetryPolicy(maxAttempts int, delayMS int64) *RetryPolicy {
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelayMS: delayMS,
		maxDelayMS:  delayMS,
		fixedDelay:  true,
		logger:      zap.NewNop().Sugar(),
	}
}

// DefaultRetryPolicy returns the spec's default profile:
// max-attempts=4, base=2000ms, cap=16000ms.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(DefaultMaxAttempts, DefaultBaseDelayMS, DefaultMaxDelayMS)
}

// WithLogger attaches a structured logger, returning the same policy for
// chaining at construction time.
func (p *RetryPolicy) WithLogger(logger *zap.SugaredLogger) *RetryPolicy {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// MaxAttempts returns the configured attempt ceiling.
func (p *RetryPolicy) MaxAttempts() int { return p.maxAttempts }

// newBackOff builds the cenkalti/backoff engine underlying DelayFor: a
// deterministic (RandomizationFactor 0), doubling (Multiplier 2) schedule
// reproduces delay(k) = min(base*2^(k-1), max) exactly for the exponential
// variant, and a flat schedule for the fixed variant.
func (p *RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(p.baseDelayMS) * time.Millisecond
	b.MaxInterval = time.Duration(p.maxDelayMS) * time.Millisecond
	b.RandomizationFactor = 0
	if p.fixedDelay {
		b.Multiplier = 1
	} else {
		b.Multiplier = 2
	}
	b.MaxElapsedTime = 0 // attempt ceiling is enforced by RetryPolicy, not elapsed time
	b.Reset()
	return b
}

// DelayFor returns delay(k) for 1-indexed attempt k: min(base·2^(k-1), max)
// for the exponential variant, base for every k in the fixed variant.
// Testable property: monotonically non-decreasing and capped at maxDelayMS.
func (p *RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := p.newBackOff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Execute invokes operation, retrying on retryable failures per the
// backoff schedule. It returns on first success, on the first
// non-retryable failure (wrapped with "permanent" context), or once
// attempts are exhausted (wrapped with the attempt count).
func (p *RetryPolicy) Execute(ctx context.Context, operation func() error) error {
	return p.ExecuteWithProgress(ctx, operation, nil)
}

// ProgressFunc is invoked before each retry sleep with the 1-indexed
// attempt that just failed and the delay about to be observed.
type ProgressFunc func(attempt int, delay time.Duration)

// ExecuteWithProgress is Execute with an optional per-retry callback.
func (p *RetryPolicy) ExecuteWithProgress(ctx context.Context, operation func() error, onRetry ProgressFunc) error {
	b := p.newBackOff()
	var lastErr error
	for attempt := 1; attempt <= maxInt(p.maxAttempts, 1); attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.Internal, "retry cancelled", err)
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Infow("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if !ClassifyRetryable(lastErr) {
			return errs.WrapKeepKind("permanent failure, not retrying", lastErr)
		}

		if attempt >= p.maxAttempts {
			break
		}

		delay := b.NextBackOff()
		if delay <= 0 {
			delay = time.Duration(p.maxDelayMS) * time.Millisecond
		}
		p.logger.Warnw("retrying after failure", "attempt", attempt, "delay", delay, "error", lastErr)
		if onRetry != nil {
			onRetry(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errs.Wrap(errs.Internal, "retry cancelled during backoff", ctx.Err())
		case <-timer.C:
		}
	}
	return errs.WrapKeepKind(fmt.Sprintf("operation failed after %d attempts", maxInt(p.maxAttempts, 1)), lastErr)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
