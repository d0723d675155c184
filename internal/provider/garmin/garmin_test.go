package garmin

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/fitledger/internal/provider"
)

func newTestAdapter() *Adapter {
	return New("ckey", "csecret", "http://localhost/cb", 7*24*time.Hour)
}

func TestVerifyWebhook_HMACHex(t *testing.T) {
	t.Parallel()
	a := newTestAdapter()
	body := []byte(`{"activities":[]}`)

	mac := hmac.New(sha256.New, []byte("csecret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if res := a.VerifyWebhook(provider.WebhookCheck{Signature: sig, Body: body}); !res.OK {
		t.Fatal("valid hmac must pass")
	}
	// Hex en mayúsculas también es válido.
	if res := a.VerifyWebhook(provider.WebhookCheck{Signature: strings.ToUpper(sig), Body: body}); !res.OK {
		t.Fatal("uppercase hex must pass")
	}
	if res := a.VerifyWebhook(provider.WebhookCheck{Signature: sig, Body: append(body, '!')}); res.OK {
		t.Fatal("tampered body must fail")
	}
}

func TestRefresh_AlwaysRequiresReauthorization(t *testing.T) {
	t.Parallel()
	a := newTestAdapter()
	_, err := a.Refresh(context.Background(), "whatever")
	if !errors.Is(err, provider.ErrTokenExpired) {
		t.Fatalf("garmin has no refresh grant, want ErrTokenExpired, got %v", err)
	}
}

func TestSetAccessTokenSecret_ReturnsIndependentCopy(t *testing.T) {
	t.Parallel()
	a := newTestAdapter()

	bound := a.SetAccessToken("tok").SetAccessTokenSecret("sec").(*Adapter)
	if a.accessToken != "" || a.accessTokenSecret != "" {
		t.Fatal("binding must not mutate the shared adapter")
	}
	if bound.accessToken != "tok" || bound.accessTokenSecret != "sec" {
		t.Fatalf("binding lost values: %q %q", bound.accessToken, bound.accessTokenSecret)
	}
}

func TestSignatureBase_FoldsQueryParams(t *testing.T) {
	t.Parallel()
	oauth := map[string]string{
		"oauth_consumer_key":     "ck",
		"oauth_nonce":            "n1",
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        "1700000000",
		"oauth_token":            "tk",
		"oauth_version":          "1.0",
	}
	raw := "https://apis.garmin.com/wellness-api/rest/dailies?uploadStartTimeInSeconds=100&uploadEndTimeInSeconds=200"

	base := signatureBase("GET", raw, oauth)
	parts := strings.SplitN(base, "&", 3)
	if len(parts) != 3 || parts[0] != "GET" {
		t.Fatalf("malformed base string: %q", base)
	}

	uri, err := url.QueryUnescape(parts[1])
	if err != nil {
		t.Fatalf("unescape uri: %v", err)
	}
	if uri != "https://apis.garmin.com/wellness-api/rest/dailies" {
		t.Fatalf("base URI must drop the query, got %q", uri)
	}

	normalized, err := url.QueryUnescape(parts[2])
	if err != nil {
		t.Fatalf("unescape params: %v", err)
	}
	for _, want := range []string{
		"oauth_token=tk",
		"uploadEndTimeInSeconds=200",
		"uploadStartTimeInSeconds=100",
	} {
		if !strings.Contains(normalized, want) {
			t.Fatalf("normalized params missing %q: %q", want, normalized)
		}
	}
	// Orden lexicográfico: oauth_* antes que upload*, End antes que Start.
	if !sort.StringsAreSorted(strings.Split(normalized, "&")) {
		t.Fatalf("params not sorted: %q", normalized)
	}
}

func TestPercentEncode(t *testing.T) {
	t.Parallel()
	if got := percentEncode("a b+c"); got != "a%20b%2Bc" {
		t.Fatalf("got %q", got)
	}
}
