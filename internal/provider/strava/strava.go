// Package strava implements the Strava activity provider.
// Strava is plain OAuth 2.0 with rotating refresh tokens; activities carry
// distance in meters which we normalize to kilometers.
package strava

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/fitledger/internal/provider"
)

const (
	ProviderKey = "strava"

	authEndpoint       = "https://www.strava.com/oauth/authorize"
	tokenEndpoint      = "https://www.strava.com/oauth/token"
	activitiesEndpoint = "https://www.strava.com/api/v3/athlete/activities"

	activitiesPerPage = 100
)

// Adapter is the Strava OAuth2 client.
type Adapter struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// VerifyToken is the shared secret echoed during webhook subscription.
	VerifyToken string
	// Lookback bounds how far back Activities fetches.
	Lookback time.Duration

	accessToken string
	http        *http.Client
}

// New creates a Strava adapter.
func New(clientID, clientSecret, redirectURL, verifyToken string, lookback time.Duration) *Adapter {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &Adapter{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		VerifyToken:  verifyToken,
		Lookback:     lookback,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *Adapter) Key() string { return ProviderKey }

// AuthURL builds the consent URL.
func (a *Adapter) AuthURL(state string) string {
	u, _ := url.Parse(authEndpoint)
	q := u.Query()
	q.Set("client_id", a.ClientID)
	q.Set("redirect_uri", a.RedirectURL)
	q.Set("response_type", "code")
	q.Set("approval_prompt", "auto")
	q.Set("scope", "activity:read_all")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
	TokenType    string `json:"token_type"`
}

type tokenError struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
	} `json:"errors"`
}

// Authorize exchanges an authorization code for tokens.
func (a *Adapter) Authorize(ctx context.Context, code string) (*provider.Credential, error) {
	form := url.Values{}
	form.Set("client_id", a.ClientID)
	form.Set("client_secret", a.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	cred, err := a.token(ctx, form)
	if err != nil {
		// A bad or expired code is an authorization problem, never retryable.
		if provider.Retryable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: code exchange: %v", provider.ErrAuthorization, err)
	}
	return cred, nil
}

// Refresh exchanges a refresh token. Strava rotates refresh tokens on every
// grant, so the caller must persist the returned credential.
func (a *Adapter) Refresh(ctx context.Context, refreshToken string) (*provider.Credential, error) {
	form := url.Values{}
	form.Set("client_id", a.ClientID)
	form.Set("client_secret", a.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	cred, err := a.token(ctx, form)
	if err != nil {
		if provider.Retryable(err) {
			return nil, err
		}
		// Strava answers 400/401 with "invalid" when the refresh token is
		// revoked or stale: that forces a full re-authorization.
		return nil, fmt.Errorf("%w: %v", provider.ErrTokenExpired, err)
	}
	return cred, nil
}

func (a *Adapter) token(ctx context.Context, form url.Values) (*provider.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var te tokenError
		_ = json.NewDecoder(resp.Body).Decode(&te)
		if cerr := provider.ClassifyStatus(resp.StatusCode, resp.Header.Get("Retry-After")); provider.Retryable(cerr) {
			return nil, cerr
		}
		return nil, fmt.Errorf("token http %d: %s", resp.StatusCode, te.Message)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("no access_token in response")
	}
	return &provider.Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Expiry:       time.Unix(tr.ExpiresAt, 0).UTC(),
	}, nil
}

type activityRow struct {
	ID             int64   `json:"id"`
	Distance       float64 `json:"distance"` // meters
	StartDateLocal string  `json:"start_date_local"`
	Type           string  `json:"type"`
}

// Activities lazily pages through the athlete's recent activities, bounded by
// the lookback window. Pages are fetched on demand as the consumer advances.
func (a *Adapter) Activities(ctx context.Context) iter.Seq2[provider.Activity, error] {
	return func(yield func(provider.Activity, error) bool) {
		after := time.Now().UTC().Add(-a.Lookback).Unix()
		for page := 1; ; page++ {
			rows, err := a.activitiesPage(ctx, after, page)
			if err != nil {
				yield(provider.Activity{}, err)
				return
			}
			for _, row := range rows {
				act, err := row.normalize()
				if err != nil {
					// Skip malformed rows instead of aborting the sync.
					continue
				}
				if !yield(act, nil) {
					return
				}
			}
			if len(rows) < activitiesPerPage {
				return
			}
		}
	}
}

func (a *Adapter) activitiesPage(ctx context.Context, after int64, page int) ([]activityRow, error) {
	u, _ := url.Parse(activitiesEndpoint)
	q := u.Query()
	q.Set("after", strconv.FormatInt(after, 10))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(activitiesPerPage))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if cerr := provider.ClassifyStatus(resp.StatusCode, resp.Header.Get("Retry-After")); cerr != nil {
		return nil, cerr
	}

	var rows []activityRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode activities: %v", provider.ErrUnavailable, err)
	}
	return rows, nil
}

func (r activityRow) normalize() (provider.Activity, error) {
	day, err := time.Parse("2006-01-02T15:04:05Z", r.StartDateLocal)
	if err != nil {
		// Strava sometimes sends offset timestamps.
		day, err = time.Parse(time.RFC3339, r.StartDateLocal)
		if err != nil {
			return provider.Activity{}, err
		}
	}
	return provider.Activity{
		ExternalID: strconv.FormatInt(r.ID, 10),
		OccurredOn: day.UTC().Truncate(24 * time.Hour),
		Metric:     provider.MetricDistanceKm,
		Value:      r.Distance / 1000.0,
		Provider:   ProviderKey,
	}, nil
}

// VerifyWebhook handles Strava's subscription challenge: the pushed
// hub.verify_token must match ours, and hub.challenge is echoed back.
func (a *Adapter) VerifyWebhook(check provider.WebhookCheck) provider.WebhookResult {
	if subtle.ConstantTimeCompare([]byte(check.VerifyToken), []byte(a.VerifyToken)) != 1 {
		return provider.WebhookResult{}
	}
	return provider.WebhookResult{OK: true, EchoChallenge: check.Challenge}
}

// SetAccessToken returns a copy bound to the token.
func (a *Adapter) SetAccessToken(token string) provider.Adapter {
	cp := *a
	cp.accessToken = token
	return &cp
}

// SetAccessTokenSecret is a no-op binding: Strava is OAuth2, no token secret.
func (a *Adapter) SetAccessTokenSecret(string) provider.Adapter { return a }
