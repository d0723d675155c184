// Package garmin implements the Garmin activity provider.
// Garmin's Health API uses OAuth 1.0a: credentials are a token plus a token
// secret, API requests are HMAC-SHA1 signed, and there is no refresh grant —
// an invalid token always means full re-authorization.
package garmin

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/fitledger/internal/provider"
)

const (
	ProviderKey = "garmin"

	confirmEndpoint = "https://connect.garmin.com/oauthConfirm"
	tokenEndpoint   = "https://connectapi.garmin.com/oauth-service/oauth/access_token"
	dailiesEndpoint = "https://apis.garmin.com/wellness-api/rest/dailies"
)

// Adapter is the Garmin OAuth1 client.
type Adapter struct {
	ConsumerKey    string
	ConsumerSecret string
	RedirectURL    string
	Lookback       time.Duration

	accessToken       string
	accessTokenSecret string
	http              *http.Client
}

// New creates a Garmin adapter.
func New(consumerKey, consumerSecret, redirectURL string, lookback time.Duration) *Adapter {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &Adapter{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		RedirectURL:    redirectURL,
		Lookback:       lookback,
		http:           &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *Adapter) Key() string { return ProviderKey }

// AuthURL builds the consent URL.
func (a *Adapter) AuthURL(state string) string {
	u, _ := url.Parse(confirmEndpoint)
	q := u.Query()
	q.Set("oauth_consumer_key", a.ConsumerKey)
	q.Set("oauth_callback", a.RedirectURL)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

// Authorize exchanges the verifier for a token + token secret pair.
// OAuth1 credentials do not expire on a clock; Expiry stays zero.
func (a *Adapter) Authorize(ctx context.Context, code string) (*provider.Credential, error) {
	form := url.Values{}
	form.Set("oauth_verifier", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", a.oauthHeader(http.MethodPost, tokenEndpoint, "", ""))

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if cerr := provider.ClassifyStatus(resp.StatusCode, resp.Header.Get("Retry-After")); cerr != nil {
		if provider.Retryable(cerr) {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: verifier exchange: %v", provider.ErrAuthorization, cerr)
	}

	// access_token response is form-encoded: oauth_token=..&oauth_token_secret=..
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %v", provider.ErrUnavailable, err)
	}
	vals, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse token response: %v", provider.ErrAuthorization, err)
	}
	tok, sec := vals.Get("oauth_token"), vals.Get("oauth_token_secret")
	if tok == "" || sec == "" {
		return nil, fmt.Errorf("%w: incomplete token response", provider.ErrAuthorization)
	}
	return &provider.Credential{AccessToken: tok, AccessTokenSecret: sec}, nil
}

// Refresh always fails: Garmin has no refresh grant. Callers get
// ErrTokenExpired and must send the user back through consent.
func (a *Adapter) Refresh(ctx context.Context, _ string) (*provider.Credential, error) {
	return nil, fmt.Errorf("%w: garmin has no refresh grant", provider.ErrTokenExpired)
}

type dailyRow struct {
	SummaryID       string `json:"summaryId"`
	CalendarDate    string `json:"calendarDate"`
	ActiveTimeInSec int64  `json:"activeTimeInSeconds"`
}

// Activities yields one duration Activity per daily summary in the lookback
// window, converting active seconds to minutes.
func (a *Adapter) Activities(ctx context.Context) iter.Seq2[provider.Activity, error] {
	return func(yield func(provider.Activity, error) bool) {
		end := time.Now().UTC()
		start := end.Add(-a.Lookback)

		u, _ := url.Parse(dailiesEndpoint)
		q := u.Query()
		q.Set("uploadStartTimeInSeconds", strconv.FormatInt(start.Unix(), 10))
		q.Set("uploadEndTimeInSeconds", strconv.FormatInt(end.Unix(), 10))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			yield(provider.Activity{}, err)
			return
		}
		req.Header.Set("Authorization", a.oauthHeader(http.MethodGet, dailiesEndpoint, a.accessToken, a.accessTokenSecret))

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

		var rows []dailyRow
		if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
			yield(provider.Activity{}, fmt.Errorf("%w: decode dailies: %v", provider.ErrUnavailable, err))
			return
		}

		for _, row := range rows {
			day, err := time.Parse("2006-01-02", row.CalendarDate)
			if err != nil {
				continue
			}
			act := provider.Activity{
				ExternalID: row.SummaryID,
				OccurredOn: day.UTC(),
				Metric:     provider.MetricDurationMin,
				Value:      float64(row.ActiveTimeInSec) / 60.0,
				Provider:   ProviderKey,
			}
			if !yield(act, nil) {
				return
			}
		}
	}
}

// VerifyWebhook checks the HMAC-SHA256 hex signature of the body keyed with
// the consumer secret, in constant time.
func (a *Adapter) VerifyWebhook(check provider.WebhookCheck) provider.WebhookResult {
	mac := hmac.New(sha256.New, []byte(a.ConsumerSecret))
	mac.Write(check.Body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(check.Signature))) {
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

// SetAccessTokenSecret returns a copy bound to the token secret.
func (a *Adapter) SetAccessTokenSecret(secret string) provider.Adapter {
	cp := *a
	cp.accessTokenSecret = secret
	return &cp
}

// oauthHeader builds an OAuth 1.0a Authorization header with an HMAC-SHA1
// signature over the normalized request (RFC 5849 §3.4).
func (a *Adapter) oauthHeader(method, rawURL, token, tokenSecret string) string {
	params := map[string]string{
		"oauth_consumer_key":     a.ConsumerKey,
		"oauth_nonce":            uuid.NewString(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
		"oauth_version":          "1.0",
	}
	if token != "" {
		params["oauth_token"] = token
	}

	base := signatureBase(method, rawURL, params)
	signingKey := percentEncode(a.ConsumerSecret) + "&" + percentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(base))
	params["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var hdr []string
	for _, k := range keys {
		hdr = append(hdr, fmt.Sprintf("%s=%q", k, percentEncode(params[k])))
	}
	return "OAuth " + strings.Join(hdr, ", ")
}

// signatureBase arma el signature base string (RFC 5849 §3.4.1): el base URI
// va sin query, y los parámetros del query se normalizan junto con los
// oauth_* antes de encodear.
func signatureBase(method, rawURL string, oauthParams map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	type pair struct{ k, v string }
	var all []pair
	for k, v := range oauthParams {
		all = append(all, pair{k, v})
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			all = append(all, pair{k, v})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].k != all[j].k {
			return all[i].k < all[j].k
		}
		return all[i].v < all[j].v
	})

	pairs := make([]string, 0, len(all))
	for _, p := range all {
		pairs = append(pairs, percentEncode(p.k)+"="+percentEncode(p.v))
	}

	baseURI := u.Scheme + "://" + u.Host + u.Path
	return strings.Join([]string{
		method,
		percentEncode(baseURI),
		percentEncode(strings.Join(pairs, "&")),
	}, "&")
}

// percentEncode encodea según RFC 3986 (espacios como %20, nunca '+').
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
