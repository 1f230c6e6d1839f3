package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oxlock/oxlock/internal/errs"
)

// State is one of the three CircuitBreaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return "Closed"
	}
}

// Default parameters per spec §4.5.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultOpenTimeout      = 60 * time.Second
)

// CircuitBreaker tracks failure density for a single downstream and
// short-circuits calls while that downstream looks unhealthy. All state
// mutation is serialized by an internal mutex; a HalfOpen breaker admits
// at most one probe at a time.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	openTimeout      time.Duration

	state         State
	failureCount  int
	successCount  int
	openedAt      time.Time
	probeInFlight bool

	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewCircuitBreaker builds a breaker with explicit thresholds.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		state:            Closed,
		logger:           zap.NewNop().Sugar(),
		now:              time.Now,
	}
}

// DefaultCircuitBreaker returns the spec's default profile.
func DefaultCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreaker(DefaultFailureThreshold, DefaultSuccessThreshold, DefaultOpenTimeout)
}

// WithLogger attaches a structured logger, returning the same breaker.
func (b *CircuitBreaker) WithLogger(logger *zap.SugaredLogger) *CircuitBreaker {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// State returns a consistent snapshot of the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionIfTimedOutLocked()
	return b.state
}

// FailureCount returns the current failure tally.
func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// transitionIfTimedOutLocked moves Open -> HalfOpen once openTimeout has
// elapsed. Must be called with mu held.
func (b *CircuitBreaker) transitionIfTimedOutLocked() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.openTimeout {
		b.state = HalfOpen
		b.successCount = 0
		b.probeInFlight = false
		b.logger.Infow("circuit breaker timeout elapsed, moving to half-open")
	}
}

// AllowRequest reports whether a request may proceed. Closed and the
// admitted HalfOpen probe return nil; Open (before timeout) and a
// HalfOpen breaker already running a probe return a CircuitOpen error.
func (b *CircuitBreaker) AllowRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionIfTimedOutLocked()

	switch b.state {
	case Closed:
		return nil
	case HalfOpen:
		if b.probeInFlight {
			return errs.New(errs.CircuitOpen, "half-open probe already in flight")
		}
		b.probeInFlight = true
		return nil
	default: // Open
		return errs.New(errs.CircuitOpen, "circuit breaker is open")
	}
}

// RecordSuccess reports a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionIfTimedOutLocked()

	switch b.state {
	case Closed:
		if b.failureCount > 0 {
			b.failureCount--
		}
	case HalfOpen:
		b.probeInFlight = false
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
			b.logger.Infow("circuit breaker closed after successful probes")
		}
	case Open:
		// A success arriving for an Open breaker (e.g. a racing call that
		// started before the breaker opened) carries no state transition.
	}
}

// RecordFailure reports a failed call.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionIfTimedOutLocked()

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.openLocked()
		}
	case HalfOpen:
		b.probeInFlight = false
		b.openLocked()
		b.failureCount = b.failureThreshold
	case Open:
		// Already open; nothing to do.
	}
}

func (b *CircuitBreaker) openLocked() {
	b.state = Open
	b.openedAt = b.now()
	b.successCount = 0
	b.logger.Warnw("circuit breaker opened", "failure_count", b.failureCount)
}

// RecordResult records a success for a nil err and a failure for a
// breaker-counted err (Network/ServerError/RateLimit per §7); an err of
// any other kind is treated as neutral and records neither.
func (b *CircuitBreaker) RecordResult(err error) {
	if err == nil {
		b.RecordSuccess()
		return
	}
	if errs.KindOf(err).BreakerCounts() {
		b.RecordFailure()
	}
}
