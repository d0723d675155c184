package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()
	if err := ClassifyStatus(200, ""); err != nil {
		t.Fatalf("2xx must be nil, got %v", err)
	}
	if err := ClassifyStatus(401, ""); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("401: %v", err)
	}
	if err := ClassifyStatus(403, ""); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("403: %v", err)
	}
	if err := ClassifyStatus(500, ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("500: %v", err)
	}
	if err := ClassifyStatus(418, ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("unexpected status: %v", err)
	}
}

func TestClassifyStatus_RateLimitCarriesRetryAfter(t *testing.T) {
	t.Parallel()
	err := ClassifyStatus(429, "120")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("429: %v", err)
	}
	if got := RetryAfter(err); got != 2*time.Minute {
		t.Fatalf("RetryAfter = %v, want 2m", got)
	}
}

func TestClassifyTransport_TimeoutIsUnavailable(t *testing.T) {
	t.Parallel()
	if err := ClassifyTransport(context.DeadlineExceeded); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("deadline: %v", err)
	}
	if errors.Is(ClassifyTransport(context.DeadlineExceeded), ErrAuthorization) {
		t.Fatal("timeouts must never classify as authorization failures")
	}
	if err := ClassifyTransport(nil); err != nil {
		t.Fatalf("nil in, nil out: %v", err)
	}
}
