package strava

import (
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/fitledger/internal/provider"
)

func newTestAdapter() *Adapter {
	return New("id", "secret", "http://localhost/cb", "verify-me", 7*24*time.Hour)
}

func TestVerifyWebhook_EchoesChallenge(t *testing.T) {
	t.Parallel()
	a := newTestAdapter()

	res := a.VerifyWebhook(provider.WebhookCheck{
		Challenge:   "abc123",
		VerifyToken: "verify-me",
	})
	if !res.OK {
		t.Fatal("expected verification to pass")
	}
	if res.EchoChallenge != "abc123" {
		t.Fatalf("challenge must be echoed verbatim, got %q", res.EchoChallenge)
	}
}

func TestVerifyWebhook_RejectsWrongToken(t *testing.T) {
	t.Parallel()
	a := newTestAdapter()

	res := a.VerifyWebhook(provider.WebhookCheck{
		Challenge:   "abc123",
		VerifyToken: "wrong",
	})
	if res.OK {
		t.Fatal("expected verification to fail")
	}
	if res.EchoChallenge != "" {
		t.Fatal("no challenge echo on failed verification")
	}
}

func TestAuthURL_CarriesState(t *testing.T) {
	t.Parallel()
	a := newTestAdapter()
	url := a.AuthURL("the-state")
	if !strings.Contains(url, "state=the-state") {
		t.Fatalf("auth url missing state: %s", url)
	}
	if !strings.Contains(url, "client_id=id") {
		t.Fatalf("auth url missing client id: %s", url)
	}
}

func TestSetAccessToken_ReturnsIndependentCopy(t *testing.T) {
	t.Parallel()
	a := newTestAdapter()

	b1 := a.SetAccessToken("token-1").(*Adapter)
	b2 := a.SetAccessToken("token-2").(*Adapter)

	if a.accessToken != "" {
		t.Fatal("binding must not mutate the shared adapter")
	}
	if b1.accessToken != "token-1" || b2.accessToken != "token-2" {
		t.Fatalf("bindings interfere: %q %q", b1.accessToken, b2.accessToken)
	}
}
