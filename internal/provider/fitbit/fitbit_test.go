package fitbit

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"testing"
	"time"

	"github.com/dropDatabas3/fitledger/internal/provider"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook_ValidSignature(t *testing.T) {
	t.Parallel()
	a := New("id", "secret", "http://localhost/cb", 7*24*time.Hour)
	body := []byte(`[{"collectionType":"activities"}]`)

	res := a.VerifyWebhook(provider.WebhookCheck{
		Signature: sign("secret", body),
		Body:      body,
	})
	if !res.OK {
		t.Fatal("expected valid signature to pass")
	}
}

func TestVerifyWebhook_RejectsTamperedBody(t *testing.T) {
	t.Parallel()
	a := New("id", "secret", "http://localhost/cb", 7*24*time.Hour)
	body := []byte(`[{"collectionType":"activities"}]`)
	sig := sign("secret", body)

	res := a.VerifyWebhook(provider.WebhookCheck{
		Signature: sig,
		Body:      append(body, 'x'),
	})
	if res.OK {
		t.Fatal("tampered body must fail verification")
	}
}

func TestVerifyWebhook_RejectsWrongSecret(t *testing.T) {
	t.Parallel()
	a := New("id", "secret", "http://localhost/cb", 7*24*time.Hour)
	body := []byte(`[]`)

	res := a.VerifyWebhook(provider.WebhookCheck{
		Signature: sign("other-secret", body),
		Body:      body,
	})
	if res.OK {
		t.Fatal("signature from another secret must fail")
	}
}
