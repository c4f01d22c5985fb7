package errors

import (
	"fmt"
	"testing"
)

func TestWrap_PreservesKindAndCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(cause, KindResource, CodeCacheWriteFailed, "disk full")

	if !Is(err, KindResource) {
		t.Fatal("expected KindResource")
	}
	if err.Unwrap() != cause {
		t.Fatal("expected cause to unwrap")
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	if Wrap(nil, KindInternal, "X", "y") != nil {
		t.Fatal("wrapping nil must return nil")
	}
}

func TestIsRetryable_OnlyTransientIngress(t *testing.T) {
	if !IsRetryable(New(KindTransientIngress, CodeBufferFull, "full")) {
		t.Fatal("transient ingress must be retryable")
	}
	if IsRetryable(New(KindValidationHard, CodeUnsortablePrices, "bad")) {
		t.Fatal("validation hard must not be retryable")
	}
}

func TestIsFatal_OnlyInternal(t *testing.T) {
	if !IsFatal(New(KindInternal, CodeChannelClosed, "closed")) {
		t.Fatal("internal errors are fatal")
	}
	if IsFatal(New(KindProtocol, CodeNonContiguous, "gap")) {
		t.Fatal("protocol errors are not fatal")
	}
}
