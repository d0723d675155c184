// Package fitbit implements the Fitbit activity provider.
// Fitbit is OAuth 2.0 with client credentials sent as HTTP Basic auth on the
// token endpoint, unlike Strava's form fields. Activities come back as daily
// step summaries rather than discrete workouts, so one Activity is produced
// per day in the lookback window.
package fitbit

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
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
	ProviderKey = "fitbit"

	authEndpoint  = "https://www.fitbit.com/oauth2/authorize"
	tokenEndpoint = "https://api.fitbit.com/oauth2/token"
	stepsEndpoint = "https://api.fitbit.com/1/user/-/activities/steps/date/%s/%s.json"
)

// Adapter is the Fitbit OAuth2 client.
type Adapter struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Lookback     time.Duration

	accessToken string
	http        *http.Client
}

// New creates a Fitbit adapter.
func New(clientID, clientSecret, redirectURL string, lookback time.Duration) *Adapter {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &Adapter{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
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
	q.Set("scope", "activity")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type apiError struct {
	Errors []struct {
		ErrorType string `json:"errorType"`
		Message   string `json:"message"`
	} `json:"errors"`
}

func (e apiError) first() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].ErrorType + ": " + e.Errors[0].Message
}

// Authorize exchanges an authorization code for tokens.
func (a *Adapter) Authorize(ctx context.Context, code string) (*provider.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", a.RedirectURL)
	form.Set("client_id", a.ClientID)
	cred, err := a.token(ctx, form)
	if err != nil {
		if provider.Retryable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: code exchange: %v", provider.ErrAuthorization, err)
	}
	return cred, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (a *Adapter) Refresh(ctx context.Context, refreshToken string) (*provider.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	cred, err := a.token(ctx, form)
	if err != nil {
		if provider.Retryable(err) {
			return nil, err
		}
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
	// Fitbit wants client credentials as Basic auth, not form fields.
	req.SetBasicAuth(a.ClientID, a.ClientSecret)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var ae apiError
		_ = json.NewDecoder(resp.Body).Decode(&ae)
		if cerr := provider.ClassifyStatus(resp.StatusCode, resp.Header.Get("Retry-After")); provider.Retryable(cerr) {
			return nil, cerr
		}
		return nil, fmt.Errorf("token http %d: %s", resp.StatusCode, ae.first())
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
		Expiry:       time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

type stepsResponse struct {
	Steps []struct {
		DateTime string `json:"dateTime"`
		Value    string `json:"value"`
	} `json:"activities-steps"`
}

// Activities yields one step-summary Activity per day in the lookback window.
// The whole window is a single API call; laziness is in the consumption.
func (a *Adapter) Activities(ctx context.Context) iter.Seq2[provider.Activity, error] {
	return func(yield func(provider.Activity, error) bool) {
		end := time.Now().UTC()
		start := end.Add(-a.Lookback)
		u := fmt.Sprintf(stepsEndpoint, start.Format("2006-01-02"), end.Format("2006-01-02"))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			yield(provider.Activity{}, err)
			return
		}
		req.Header.Set("Authorization", "Bearer "+a.accessToken)

		resp, err := a.http.Do(req)
		if err != nil {
			yield(provider.Activity{}, provider.ClassifyTransport(err))
			return
		}
		defer resp.Body.Close()

		if cerr := provider.ClassifyStatus(resp.StatusCode, resp.Header.Get("Retry-After")); cerr != nil {
			yield(provider.Activity{}, cerr)
			return
		}

		var sr stepsResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			yield(provider.Activity{}, fmt.Errorf("%w: decode steps: %v", provider.ErrUnavailable, err))
			return
		}

		for _, row := range sr.Steps {
			day, err := time.Parse("2006-01-02", row.DateTime)
			if err != nil {
				continue
			}
			steps, err := strconv.ParseFloat(row.Value, 64)
			if err != nil {
				continue
			}
			act := provider.Activity{
				// One summary per day; the date itself is the stable id.
				ExternalID: "steps-" + row.DateTime,
				OccurredOn: day.UTC(),
				Metric:     provider.MetricSteps,
				Value:      steps,
				Provider:   ProviderKey,
			}
			if !yield(act, nil) {
				return
			}
		}
	}
}

// VerifyWebhook checks Fitbit's X-Fitbit-Signature: base64 of
// HMAC-SHA1(body, clientSecret + "&"), compared in constant time.
func (a *Adapter) VerifyWebhook(check provider.WebhookCheck) provider.WebhookResult {
	mac := hmac.New(sha1.New, []byte(a.ClientSecret+"&"))
	mac.Write(check.Body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(check.Signature)) {
		return provider.WebhookResult{}
	}
	return provider.WebhookResult{OK: true}
}

// SetAccessToken returns a copy bound to the token.
func (a *Adapter) SetAccessToken(token string) provider.Adapter {
	cp := *a
	cp.accessToken = token
	return &cp
}

// SetAccessTokenSecret is a no-op binding: Fitbit is OAuth2, no token secret.
func (a *Adapter) SetAccessTokenSecret(string) provider.Adapter { return a }
