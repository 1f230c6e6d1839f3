// Package errs defines the closed set of error kinds shared by every core
// component, per the propagation policy: components surface the
// first-occurrence kind, and wrapping adapters may add context but must
// never reclassify it.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed classification of every error the core can produce.
type Kind int

const (
	// Unknown is never produced by this module; it exists so a zero Kind
	// is visibly wrong rather than silently matching NotFound.
	Unknown Kind = iota
	NotFound
	AlreadyExists
	Conflict
	NotAuthorized
	AmbiguousReference
	Protected
	Network
	RateLimit
	ServerError
	CircuitOpen
	Protocol
	Filesystem
	Internal
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case Conflict:
		return "Conflict"
	case NotAuthorized:
		return "NotAuthorized"
	case AmbiguousReference:
		return "AmbiguousReference"
	case Protected:
		return "Protected"
	case Network:
		return "Network"
	case RateLimit:
		return "RateLimit"
	case ServerError:
		return "ServerError"
	case CircuitOpen:
		return "CircuitOpen"
	case Protocol:
		return "Protocol"
	case Filesystem:
		return "Filesystem"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Retryable reports whether the kind is retryable per spec: Network,
// RateLimit and ServerError are; everything else, including Unknown, is
// fail-safe non-retryable.
func (k Kind) Retryable() bool {
	switch k {
	case Network, RateLimit, ServerError:
		return true
	default:
		return false
	}
}

// BreakerCounts reports whether the kind should count toward a
// CircuitBreaker's failure tally. Per §7: only Network/ServerError/RateLimit
// are counted; every other kind is neutral.
func (k Kind) BreakerCounts() bool {
	switch k {
	case Network, RateLimit, ServerError:
		return true
	default:
		return false
	}
}

// Error is the concrete error type every core component returns. It never
// reclassifies an inner error's Kind when wrapped further up the stack.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Unwrap() error { return e.cause }

// New builds a kind-classified error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap builds a kind-classified error around an existing cause. The kind is
// the one supplied here, not inherited from cause — callers wrapping an
// already-classified *Error should use WrapKeepKind instead.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// WrapKeepKind adds context to an error without reclassifying it. If cause
// is (or wraps) an *Error, the returned error keeps cause's Kind; otherwise
// it falls back to Internal, since an unclassified error reaching this
// point is itself an invariant violation of the propagation policy.
func WrapKeepKind(message string, cause error) *Error {
	var inner *Error
	if errors.As(cause, &inner) {
		return &Error{kind: inner.kind, message: message, cause: cause}
	}
	return &Error{kind: Internal, message: message, cause: cause}
}

// KindOf extracts the Kind of err, defaulting to Unknown if err does not
// wrap an *Error produced by this module.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Unknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
