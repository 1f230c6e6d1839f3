package errs

import (
	"errors"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{NotFound, "NotFound"},
		{Conflict, "Conflict"},
		{CircuitOpen, "CircuitOpen"},
		{Unknown, "Unknown"},
		{Kind(999), "Unknown"},
	}
	for _, c := range cases {
		if got := c.kind.String(); got != c.want {
			t.Errorf("Kind(%d).String() = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	for _, k := range []Kind{Network, RateLimit, ServerError} {
		if !k.Retryable() {
			t.Errorf("%v should be retryable", k)
		}
	}
	for _, k := range []Kind{NotFound, Conflict, Internal, Unknown} {
		if k.Retryable() {
			t.Errorf("%v should not be retryable", k)
		}
	}
}

func TestBreakerCounts(t *testing.T) {
	if !Network.BreakerCounts() {
		t.Error("Network should count toward breaker failures")
	}
	if Conflict.BreakerCounts() {
		t.Error("Conflict should not count toward breaker failures")
	}
}

func TestNewAndKindOf(t *testing.T) {
	err := New(NotFound, "missing")
	if KindOf(err) != NotFound {
		t.Errorf("KindOf() = %v, want NotFound", KindOf(err))
	}
	if !Is(err, NotFound) {
		t.Error("Is(err, NotFound) should be true")
	}
	if KindOf(errors.New("plain")) != Unknown {
		t.Error("KindOf on a plain error should be Unknown")
	}
}

func TestWrapKeepKind(t *testing.T) {
	inner := New(Conflict, "locked")
	wrapped := WrapKeepKind("retrying", inner)
	if wrapped.Kind() != Conflict {
		t.Errorf("WrapKeepKind should preserve Conflict, got %v", wrapped.Kind())
	}
	if !errors.Is(wrapped, wrapped) {
		t.Error("wrapped error should satisfy errors.Is against itself")
	}

	plain := errors.New("opaque failure")
	wrappedPlain := WrapKeepKind("retrying", plain)
	if wrappedPlain.Kind() != Internal {
		t.Errorf("WrapKeepKind on an unclassified cause should fall back to Internal, got %v", wrappedPlain.Kind())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(Filesystem, "write failed", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("Wrap should preserve Unwrap chain to the cause")
	}
	if wrapped.Error() == "" {
		t.Error("Error() should not be empty")
	}
}
