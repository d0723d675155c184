// Package provider defines the data-source adapter contract for fitness
// activity providers.
//
// Each tracked platform (Strava, Fitbit, Garmin, ...) implements Adapter in
// its own sub-package. The Registry resolves adapters by key at startup so
// the rest of the system treats all providers uniformly; wire details (OAuth
// flavor, request signing, pagination, unit conversion) stay inside each
// adapter.
//
// Architecture:
//   - Adapter interface: common surface all providers must implement
//   - Registry: startup-built key → Adapter mapping, manual entry excluded
//   - Adapter implementations: one sub-package per provider
package provider

import (
	"context"
	"iter"
	"time"
)

// ManualKey is the reserved data-source key for manually awarded points.
// There is no adapter behind it: it is excluded from provider enumeration
// but its ledger rows count toward totals like any other source.
const ManualKey = "manual"

// Metric indicates what an activity's Value measures.
type Metric string

const (
	MetricDistanceKm  Metric = "distance_km"
	MetricSteps       Metric = "steps"
	MetricDurationMin Metric = "duration_min"
)

// Activity is a normalized activity record produced by an adapter.
// Transient: it is consumed to produce ledger rows, never persisted as-is.
type Activity struct {
	// ExternalID is the provider-scoped activity id, used for dedup.
	ExternalID string
	// OccurredOn is the activity's local date, truncated to UTC midnight.
	OccurredOn time.Time
	// Metric and Value carry the provider's native measure after unit
	// normalization (meters → km, seconds → minutes). Point arithmetic is
	// the ledger's job, not the adapter's.
	Metric Metric
	Value  float64
	// Provider is the adapter key that produced this activity.
	Provider string
}

// Credential is the token set an adapter produces and consumes. Adapters never
// persist credentials; they operate on values passed in and return updated
// ones. Persistence belongs to the caller.
type Credential struct {
	AccessToken       string
	AccessTokenSecret string // token+secret providers only
	RefreshToken      string
	Expiry            time.Time
}

// WebhookCheck carries whatever the provider pushed for verification.
type WebhookCheck struct {
	// Signature is the raw signature header value (HMAC providers).
	Signature string
	// Body is the raw request body the signature covers.
	Body []byte
	// Challenge and VerifyToken come from challenge-response subscriptions.
	Challenge   string
	VerifyToken string
}

// WebhookResult is the outcome of webhook verification.
type WebhookResult struct {
	OK bool
	// EchoChallenge, when non-empty, must be returned to the provider verbatim.
	EchoChallenge string
}

// Adapter is the narrow common surface every activity provider implements.
//
// Credential configuration is builder-style: SetAccessToken returns a derived
// adapter bound to that credential. Implementations must not mutate shared
// state, so concurrent syncs for different users can hold different bindings
// of the same underlying adapter.
type Adapter interface {
	// Key returns the registry key ("strava", "fitbit", ...).
	Key() string

	// AuthURL constructs the provider's OAuth consent URL. No side effects.
	AuthURL(state string) string

	// Authorize exchanges an authorization code for a credential set.
	// Fails with ErrAuthorization on an invalid/expired code or provider
	// rejection.
	Authorize(ctx context.Context, code string) (*Credential, error)

	// Refresh exchanges a refresh token for a new credential. Fails with
	// ErrTokenExpired when the refresh token itself is no longer valid;
	// the caller must then force full re-authorization, never retry Refresh.
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)

	// Activities produces a lazy, finite sequence of normalized activities
	// for the bound credential, limited to the adapter's lookback window.
	// Iteration errors are classified: ErrRateLimited and
	// ErrUnavailable are retryable, ErrAuthorization is not.
	Activities(ctx context.Context) iter.Seq2[Activity, error]

	// VerifyWebhook validates a provider-pushed webhook. Signature
	// comparison must be constant time.
	VerifyWebhook(check WebhookCheck) WebhookResult

	// SetAccessToken returns a copy of the adapter bound to the token.
	SetAccessToken(token string) Adapter

	// SetAccessTokenSecret returns a copy bound to the token secret
	// (token+secret providers; a no-op binding elsewhere).
	SetAccessTokenSecret(secret string) Adapter
}
