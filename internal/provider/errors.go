package provider

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy. Retryability is a property of the class, not the call site:
// schedulers decide what to do by errors.Is, never by string matching.
var (
	// ErrAuthorization: the provider rejected our credentials. Not retryable
	// without new user consent ("please reconnect this provider").
	ErrAuthorization = errors.New("provider: authorization failed")

	// ErrTokenExpired: the refresh token itself is no longer valid. The
	// caller must force full re-authorization.
	ErrTokenExpired = errors.New("provider: refresh token expired")

	// ErrRateLimited: the provider throttled us. Retryable after backoff.
	ErrRateLimited = errors.New("provider: rate limited")

	// ErrUnavailable: transient provider failure or timeout. Retryable.
	ErrUnavailable = errors.New("provider: unavailable")

	// ErrUnknownProvider: no adapter registered under the requested key.
	// A configuration defect, fatal for that lookup.
	ErrUnknownProvider = errors.New("provider: unknown provider")
)

// RateLimitError wraps ErrRateLimited with the provider's advised wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider: rate limited, retry after %s", e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter extracts the advised backoff from a rate-limit error chain.
// Returns 0 when the provider gave no hint.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Retryable reports whether the scheduler may retry the operation without
// user action. Authorization failures require reconnecting the provider.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
