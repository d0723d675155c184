// Package syncer pulls recent activities from connected providers and feeds
// them to the points ledger. A sweep is safe to re-run: ingest is an upsert,
// and token refresh is collapsed with singleflight so concurrent sweeps never
// burn the same refresh token twice.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	"github.com/dropDatabas3/fitledger/internal/ledger"
	"github.com/dropDatabas3/fitledger/internal/metrics"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/provider"
	"github.com/dropDatabas3/fitledger/internal/util"
)

// Result is the outcome of syncing a single user on a single provider.
type Result struct {
	UserID   string
	Provider string
	Ingested ledger.IngestResult
	// NeedsReconnect marks credentials the user must re-authorize. The sweep
	// does not delete them; the connect flow overwrites on success.
	NeedsReconnect bool
	Err            error
}

// SweepReport aggregates one sweep over all providers.
type SweepReport struct {
	Results []Result
}

// Failed returns the results that ended in error.
func (r SweepReport) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Syncer orchestrates provider pulls. Stateless except for the refresh group.
type Syncer struct {
	registry *provider.Registry
	creds    repository.CredentialRepository
	ledger   *ledger.Service
	refresh  singleflight.Group
	now      func() time.Time
}

// New creates a syncer over the registered providers.
func New(registry *provider.Registry, creds repository.CredentialRepository, svc *ledger.Service) *Syncer {
	return &Syncer{
		registry: registry,
		creds:    creds,
		ledger:   svc,
		now:      time.Now,
	}
}

// Sweep syncs every stored credential of every registered provider for the
// given event. Errors are isolated per user: one bad credential never stops
// the sweep.
func (s *Syncer) Sweep(ctx context.Context, eventID string) SweepReport {
	log := logger.Named("syncer")
	var report SweepReport

	for _, key := range s.registry.Keys() {
		creds, err := s.creds.ListByProvider(ctx, key)
		if err != nil {
			log.Error("listing credentials failed", logger.Provider(key), logger.Err(err))
			report.Results = append(report.Results, Result{Provider: key, Err: err})
			continue
		}
		for _, cred := range creds {
			res := s.SyncUser(ctx, cred.UserID, key, eventID)
			report.Results = append(report.Results, res)
		}
	}
	return report
}

// SyncUser pulls one user's activities from one provider into the ledger.
func (s *Syncer) SyncUser(ctx context.Context, userID, providerKey, eventID string) Result {
	log := logger.Named("syncer").With(
		logger.UserID(userID),
		logger.Provider(providerKey),
		logger.EventID(eventID),
	)
	res := Result{UserID: userID, Provider: providerKey}

	adapter, err := s.registry.Get(providerKey)
	if err != nil {
		res.Err = err
		metrics.SyncResults.WithLabelValues(providerKey, "error").Inc()
		return res
	}

	cred, err := s.creds.Get(ctx, userID, providerKey)
	if err != nil {
		res.Err = fmt.Errorf("syncer: load credential: %w", err)
		metrics.SyncResults.WithLabelValues(providerKey, "error").Inc()
		return res
	}

	if cred.Expired(s.now()) {
		refreshed, err := s.refreshCredential(ctx, adapter, cred)
		if err != nil {
			if errors.Is(err, provider.ErrTokenExpired) || errors.Is(err, provider.ErrAuthorization) {
				res.NeedsReconnect = true
				metrics.SyncResults.WithLabelValues(providerKey, "auth").Inc()
				log.Warn("credential needs re-authorization", logger.Err(err))
			} else {
				metrics.SyncResults.WithLabelValues(providerKey, "error").Inc()
				log.Error("token refresh failed", logger.Err(err))
			}
			res.Err = err
			return res
		}
		cred = refreshed
	}

	bound := adapter.SetAccessToken(cred.AccessToken)
	if cred.AccessTokenSecret != "" {
		bound = bound.SetAccessTokenSecret(cred.AccessTokenSecret)
	}

	ingested, err := s.ledger.Ingest(ctx, userID, eventID, bound.Activities(ctx))
	res.Ingested = ingested
	if err != nil {
		res.Err = err
		switch {
		case errors.Is(err, provider.ErrAuthorization):
			res.NeedsReconnect = true
			metrics.SyncResults.WithLabelValues(providerKey, "auth").Inc()
		case errors.Is(err, provider.ErrRateLimited):
			metrics.SyncResults.WithLabelValues(providerKey, "rate_limited").Inc()
			log.Warn("provider rate limited",
				logger.Err(err),
				zap.Duration("retry_after", provider.RetryAfter(err)),
			)
		case errors.Is(err, provider.ErrUnavailable):
			metrics.SyncResults.WithLabelValues(providerKey, "unavailable").Inc()
		default:
			metrics.SyncResults.WithLabelValues(providerKey, "error").Inc()
		}
		return res
	}

	metrics.SyncResults.WithLabelValues(providerKey, "ok").Inc()
	metrics.ActivitiesIngested.WithLabelValues(providerKey).Add(float64(ingested.Activities))
	log.Info("sync completed",
		logger.Count(ingested.Activities),
		logger.Points(ingested.Points),
	)
	return res
}

// refreshCredential exchanges the refresh token and persists the new
// credential before returning it. Collapsed per (user, provider): concurrent
// callers share one refresh round-trip.
func (s *Syncer) refreshCredential(ctx context.Context, adapter provider.Adapter, cred *repository.ProviderCredential) (*repository.ProviderCredential, error) {
	key := cred.UserID + "/" + cred.Provider
	v, err, _ := s.refresh.Do(key, func() (interface{}, error) {
		fresh, err := adapter.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			metrics.TokenRefreshes.WithLabelValues(cred.Provider, refreshResult(err)).Inc()
			return nil, err
		}
		next := *cred
		next.AccessToken = fresh.AccessToken
		if fresh.RefreshToken != "" {
			next.RefreshToken = fresh.RefreshToken
		}
		next.Expiry = fresh.Expiry
		next.UpdatedAt = s.now()
		if err := s.creds.Upsert(ctx, next); err != nil {
			return nil, fmt.Errorf("syncer: persist refreshed credential: %w", err)
		}
		metrics.TokenRefreshes.WithLabelValues(cred.Provider, "ok").Inc()
		logger.Named("syncer").Info("credential refreshed",
			logger.UserID(cred.UserID),
			logger.Provider(cred.Provider),
			logger.String("access_token", util.MaskToken(next.AccessToken)),
		)
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*repository.ProviderCredential), nil
}

func refreshResult(err error) string {
	if errors.Is(err, provider.ErrTokenExpired) {
		return "expired"
	}
	return "error"
}
