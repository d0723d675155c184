package syncer

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	"github.com/dropDatabas3/fitledger/internal/ledger"
	"github.com/dropDatabas3/fitledger/internal/provider"
	"github.com/dropDatabas3/fitledger/internal/store/adapters/memory"
)

// fakeAdapter permite controlar refresh y actividades por test.
type fakeAdapter struct {
	key        string
	refreshed  *provider.Credential
	refreshErr error
	activities []provider.Activity
	actErr     error
	boundToken string
	refreshes  *int
}

func (f *fakeAdapter) Key() string           { return f.key }
func (f *fakeAdapter) AuthURL(string) string { return "" }
func (f *fakeAdapter) Authorize(context.Context, string) (*provider.Credential, error) {
	return nil, provider.ErrAuthorization
}
func (f *fakeAdapter) Refresh(context.Context, string) (*provider.Credential, error) {
	if f.refreshes != nil {
		*f.refreshes++
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}
func (f *fakeAdapter) Activities(context.Context) iter.Seq2[provider.Activity, error] {
	return func(yield func(provider.Activity, error) bool) {
		for _, a := range f.activities {
			if !yield(a, nil) {
				return
			}
		}
		if f.actErr != nil {
			yield(provider.Activity{}, f.actErr)
		}
	}
}
func (f *fakeAdapter) VerifyWebhook(provider.WebhookCheck) provider.WebhookResult {
	return provider.WebhookResult{}
}
func (f *fakeAdapter) SetAccessToken(token string) provider.Adapter {
	cp := *f
	cp.boundToken = token
	return &cp
}
func (f *fakeAdapter) SetAccessTokenSecret(string) provider.Adapter { return f }

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func setup(t *testing.T, a provider.Adapter) (*Syncer, *memory.Store) {
	t.Helper()
	reg := provider.NewRegistry()
	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := memory.New()
	svc := ledger.New(store.Ledger(), ledger.Rates{PointsPerKm: 10})
	return New(reg, store.Credentials(), svc), store
}

func seedCredential(t *testing.T, store *memory.Store, expiry time.Time) {
	t.Helper()
	err := store.Credentials().Upsert(context.Background(), repository.ProviderCredential{
		UserID:       "u1",
		Provider:     "strava",
		AccessToken:  "old-token",
		RefreshToken: "refresh-1",
		Expiry:       expiry,
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
}

func TestSyncUser_IngestsActivities(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{
		key: "strava",
		activities: []provider.Activity{
			{ExternalID: "a1", OccurredOn: day("2026-03-01"), Metric: provider.MetricDistanceKm, Value: 5, Provider: "strava"},
		},
	}
	s, store := setup(t, adapter)
	seedCredential(t, store, time.Now().Add(time.Hour))

	res := s.SyncUser(context.Background(), "u1", "strava", "ev1")
	if res.Err != nil {
		t.Fatalf("sync err: %v", res.Err)
	}
	if res.Ingested.Points != 50 {
		t.Fatalf("expected 50 points, got %d", res.Ingested.Points)
	}
}

func TestSyncUser_RefreshesExpiredCredentialAndPersists(t *testing.T) {
	t.Parallel()
	refreshes := 0
	adapter := &fakeAdapter{
		key:       "strava",
		refreshes: &refreshes,
		refreshed: &provider.Credential{
			AccessToken:  "new-token",
			RefreshToken: "refresh-2",
			Expiry:       time.Now().Add(6 * time.Hour),
		},
	}
	s, store := setup(t, adapter)
	seedCredential(t, store, time.Now().Add(-time.Hour))

	res := s.SyncUser(context.Background(), "u1", "strava", "ev1")
	if res.Err != nil {
		t.Fatalf("sync err: %v", res.Err)
	}
	if refreshes != 1 {
		t.Fatalf("expected exactly one refresh, got %d", refreshes)
	}

	cred, err := store.Credentials().Get(context.Background(), "u1", "strava")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if cred.AccessToken != "new-token" || cred.RefreshToken != "refresh-2" {
		t.Fatalf("refreshed credential not persisted: %+v", cred)
	}
}

func TestSyncUser_ExpiredRefreshTokenNeedsReconnect(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{key: "strava", refreshErr: provider.ErrTokenExpired}
	s, store := setup(t, adapter)
	seedCredential(t, store, time.Now().Add(-time.Hour))

	res := s.SyncUser(context.Background(), "u1", "strava", "ev1")
	if res.Err == nil {
		t.Fatal("expected error")
	}
	if !res.NeedsReconnect {
		t.Fatal("expired refresh token must flag re-authorization")
	}

	// La credencial no se borra: el connect flow la sobreescribe.
	if _, err := store.Credentials().Get(context.Background(), "u1", "strava"); err != nil {
		t.Fatalf("credential must survive for reconnect: %v", err)
	}
}

func TestSweep_IsolatesUserFailures(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{
		key:    "strava",
		actErr: provider.ErrUnavailable,
	}
	s, store := setup(t, adapter)
	seedCredential(t, store, time.Now().Add(time.Hour))

	err := store.Credentials().Upsert(context.Background(), repository.ProviderCredential{
		UserID:      "u2",
		Provider:    "strava",
		AccessToken: "tok-2",
		Expiry:      time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed u2: %v", err)
	}

	report := s.Sweep(context.Background(), "ev1")
	if len(report.Results) != 2 {
		t.Fatalf("expected both users attempted, got %d results", len(report.Results))
	}
	if len(report.Failed()) != 2 {
		t.Fatalf("both syncs hit the unavailable provider: %+v", report.Failed())
	}
}

func TestCredential_ExpiredMargin(t *testing.T) {
	t.Parallel()
	now := time.Now()
	c := repository.ProviderCredential{Expiry: now.Add(10 * time.Second)}
	if !c.Expired(now) {
		t.Fatal("credential inside the safety margin counts as expired")
	}
	c.Expiry = now.Add(time.Hour)
	if c.Expired(now) {
		t.Fatal("fresh credential is not expired")
	}
	c.Expiry = time.Time{}
	if c.Expired(now) {
		t.Fatal("zero expiry means never expires")
	}
}
