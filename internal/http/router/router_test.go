package router_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	adminctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/admin"
	connectctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/connect"
	healthctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/health"
	webhookctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/webhooks"
	"github.com/dropDatabas3/fitledger/internal/http/router"
	"github.com/dropDatabas3/fitledger/internal/ledger"
	"github.com/dropDatabas3/fitledger/internal/pipeline"
	"github.com/dropDatabas3/fitledger/internal/provider"
	"github.com/dropDatabas3/fitledger/internal/security/statetoken"
	"github.com/dropDatabas3/fitledger/internal/store/adapters/memory"
	"github.com/dropDatabas3/fitledger/internal/syncer"
	"github.com/dropDatabas3/fitledger/internal/tracker"
)

const (
	adminKey       = "sk-test-admin"
	commerceSecret = "commerce-secret"
)

// stubAdapter implementa provider.Adapter sin tocar la red.
type stubAdapter struct {
	key   string
	token string
}

func (a stubAdapter) Key() string { return a.key }

func (a stubAdapter) AuthURL(state string) string {
	return "https://auth.example.test/oauth?state=" + url.QueryEscape(state)
}

func (a stubAdapter) Authorize(_ context.Context, code string) (*provider.Credential, error) {
	if code == "" {
		return nil, provider.ErrAuthorization
	}
	return &provider.Credential{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (a stubAdapter) Refresh(_ context.Context, _ string) (*provider.Credential, error) {
	return nil, provider.ErrTokenExpired
}

func (a stubAdapter) Activities(_ context.Context) iter.Seq2[provider.Activity, error] {
	return func(yield func(provider.Activity, error) bool) {}
}

func (a stubAdapter) VerifyWebhook(check provider.WebhookCheck) provider.WebhookResult {
	if check.Challenge != "" {
		if check.VerifyToken != "verify-me" {
			return provider.WebhookResult{}
		}
		return provider.WebhookResult{OK: true, EchoChallenge: check.Challenge}
	}
	return provider.WebhookResult{OK: true}
}

func (a stubAdapter) SetAccessToken(token string) provider.Adapter {
	cp := a
	cp.token = token
	return cp
}

func (a stubAdapter) SetAccessTokenSecret(_ string) provider.Adapter { return a }

type env struct {
	srv    *httptest.Server
	stores *memory.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()

	stores := memory.New()
	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(stubAdapter{key: "strava"}))

	svc := ledger.New(stores.Ledger(), ledger.DefaultRates())
	agg := tracker.New(registry, stores.Ledger(), stores.Snapshots())
	sync := syncer.New(registry, stores.Credentials(), svc)
	pipe := pipeline.New(stores.Webhooks(), svc, nil, nil)
	states := statetoken.New("state-secret", 10*time.Minute)

	r := router.New(router.Deps{
		Health:      healthctrl.New(func(context.Context) error { return nil }, "test"),
		Connect:     connectctrl.New(registry, stores.Credentials(), states),
		Provider:    webhookctrl.NewProvider(registry, nil),
		Commerce:    webhookctrl.NewCommerce(pipe, commerceSecret),
		Admin:       adminctrl.New(agg, sync, pipe, svc, stores.Snapshots(), 100),
		AdminAPIKey: adminKey,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, stores: stores}
}

func (e *env) do(t *testing.T, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func signCommerce(body []byte) string {
	mac := hmac.New(sha256.New, []byte(commerceSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestReadyz(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConnectFlow_EndToEnd(t *testing.T) {
	e := newEnv(t)

	// Start: redirect al consent screen con state firmado.
	resp := e.do(t, http.MethodGet, "/connect/strava?user_id=u1", nil, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	// Callback: canjea el código y persiste la credencial.
	resp = e.do(t, http.MethodGet, "/connect/strava/callback?code=abc&state="+url.QueryEscape(state), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cred, err := e.stores.Credentials().Get(context.Background(), "u1", "strava")
	require.NoError(t, err)
	require.Equal(t, "access-abc", cred.AccessToken)
	require.Equal(t, "refresh-abc", cred.RefreshToken)

	// Disconnect elimina la credencial.
	resp = e.do(t, http.MethodDelete, "/connect/strava?user_id=u1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = e.stores.Credentials().Get(context.Background(), "u1", "strava")
	require.True(t, repository.IsNotFound(err))
}

func TestConnectCallback_RejectsForgedState(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/connect/strava/callback?code=abc&state=forged", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProviderWebhook_ChallengeEcho(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/webhooks/strava?hub.challenge=ch-123&hub.verify_token=verify-me", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "ch-123", out["hub.challenge"])

	resp = e.do(t, http.MethodGet, "/webhooks/strava?hub.challenge=ch-123&hub.verify_token=wrong", nil, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCommerceWebhook_SignatureAndPipeline(t *testing.T) {
	e := newEnv(t)

	body, _ := json.Marshal(map[string]any{
		"order_number":   "ord-1001",
		"customer_email": "ana@example.test",
		"customer_name":  "Ana",
		"user_id":        "u1",
		"event_id":       "ev1",
		"bonus_points":   25,
	})

	// Sin firma válida no entra.
	resp := e.do(t, http.MethodPost, "/webhooks/commerce", body, map[string]string{
		"X-Webhook-Signature": "deadbeef",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/webhooks/commerce", body, map[string]string{
		"X-Webhook-Signature": signCommerce(body),
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted struct {
		ID          string `json:"id"`
		OrderNumber string `json:"order_number"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	require.Equal(t, "ord-1001", accepted.OrderNumber)

	// El sweep del operador completa las etapas pendientes.
	resp = e.do(t, http.MethodPost, "/admin/pipeline/sweep", nil, map[string]string{"X-API-Key": adminKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sweep map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sweep))
	require.Equal(t, 1, sweep["completed"])

	ev, err := e.stores.Webhooks().GetByOrderNumber(context.Background(), "ord-1001")
	require.NoError(t, err)
	require.Equal(t, repository.StageDone, ev.AckStatus)
	require.Equal(t, repository.StageDone, ev.LedgerStatus)
	require.Equal(t, repository.StageDone, ev.CRMSyncStatus)
}

func TestAdminSurface_RequiresAPIKey(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/admin/pipeline/sweep", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/admin/pipeline/sweep", nil, map[string]string{"X-API-Key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAwardAndAggregate(t *testing.T) {
	e := newEnv(t)

	award, _ := json.Marshal(map[string]any{
		"user_id":        "u1",
		"event_id":       "ev1",
		"data_source_id": "strava",
		"date":           "2026-03-01",
		"amount":         120,
	})
	resp := e.do(t, http.MethodPost, "/admin/award", award, map[string]string{"X-API-Key": adminKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/admin/aggregate?date=2026-03-01", nil, map[string]string{"X-API-Key": adminKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/admin/snapshots?date=2026-03-01", nil, map[string]string{"X-API-Key": adminKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snaps []struct {
		DataSourceID string `json:"data_source_id"`
		TotalPoints  int64  `json:"total_points"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	require.Equal(t, "strava", snaps[0].DataSourceID)
	require.EqualValues(t, 120, snaps[0].TotalPoints)
}
