package provider

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"
)

type stubAdapter struct{ key string }

func (s stubAdapter) Key() string           { return s.key }
func (s stubAdapter) AuthURL(string) string { return "" }
func (s stubAdapter) Authorize(context.Context, string) (*Credential, error) {
	return nil, ErrAuthorization
}
func (s stubAdapter) Refresh(context.Context, string) (*Credential, error) {
	return nil, ErrTokenExpired
}
func (s stubAdapter) Activities(context.Context) iter.Seq2[Activity, error] {
	return func(func(Activity, error) bool) {}
}
func (s stubAdapter) VerifyWebhook(WebhookCheck) WebhookResult { return WebhookResult{} }
func (s stubAdapter) SetAccessToken(string) Adapter            { return s }
func (s stubAdapter) SetAccessTokenSecret(string) Adapter      { return s }

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(stubAdapter{key: "strava"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Get("strava")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Key() != "strava" {
		t.Fatalf("got key %q", got.Key())
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	_, err := r.Get("nope")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRegistry_RejectsDuplicatesAndManual(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(stubAdapter{key: "strava"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(stubAdapter{key: "strava"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := r.Register(stubAdapter{key: ManualKey}); err == nil {
		t.Fatal("manual is a reserved pseudo-provider key")
	}
	if err := r.Register(stubAdapter{key: ""}); err == nil {
		t.Fatal("empty key must be rejected")
	}
}

func TestRegistry_KeysSortedAndManualExcluded(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, k := range []string{"strava", "fitbit", "garmin"} {
		if err := r.Register(stubAdapter{key: k}); err != nil {
			t.Fatalf("register %s: %v", k, err)
		}
	}
	keys := r.Keys()
	want := []string{"fitbit", "garmin", "strava"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
		if keys[i] == ManualKey {
			t.Fatal("manual must never appear in provider enumeration")
		}
	}
}

func TestRateLimitError_WrapsSentinel(t *testing.T) {
	t.Parallel()
	err := &RateLimitError{RetryAfter: 30 * time.Second}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("RateLimitError must unwrap to ErrRateLimited")
	}
	if RetryAfter(err) != 30*time.Second {
		t.Fatalf("RetryAfter = %v", RetryAfter(err))
	}
	if RetryAfter(ErrUnavailable) != 0 {
		t.Fatal("plain errors carry no retry-after")
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()
	if !Retryable(ErrRateLimited) || !Retryable(ErrUnavailable) {
		t.Fatal("rate-limited and unavailable are retryable")
	}
	if Retryable(ErrAuthorization) || Retryable(ErrTokenExpired) {
		t.Fatal("auth failures are not retryable")
	}
}
