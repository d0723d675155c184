// Package ledger is the single write path into the points ledger.
//
// All point-awarding callers (provider sync, manual admin entry, purchase
// reconciliation) go through Service.Award, which is a keyed upsert: at most
// one authoritative amount exists per (user, event, data source, day), and
// re-applying the same key replaces the amount instead of duplicating it.
// No other component computes point totals from raw activity.
package ledger

import (
	"context"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/provider"
)

// Rates converts normalized activity metrics into points. The ledger owns
// this arithmetic; adapters only normalize units.
type Rates struct {
	PointsPerKm    int64 // distance providers
	PointsPerKStep int64 // step providers, per 1000 steps
	PointsPerMin   int64 // duration providers
}

// DefaultRates matches the config defaults.
func DefaultRates() Rates {
	return Rates{PointsPerKm: 10, PointsPerKStep: 1, PointsPerMin: 1}
}

// Points computes the point value of a single normalized activity.
func (r Rates) Points(metric provider.Metric, value float64) int64 {
	if value <= 0 {
		return 0
	}
	switch metric {
	case provider.MetricDistanceKm:
		return int64(math.Floor(value)) * r.PointsPerKm
	case provider.MetricSteps:
		return int64(math.Floor(value/1000.0)) * r.PointsPerKStep
	case provider.MetricDurationMin:
		return int64(math.Floor(value)) * r.PointsPerMin
	}
	return 0
}

// Service owns writes to the points ledger.
type Service struct {
	repo  repository.LedgerRepository
	rates Rates
}

// New creates the ledger service.
func New(repo repository.LedgerRepository, rates Rates) *Service {
	return &Service{repo: repo, rates: rates}
}

// Award upserts the authoritative amount for one ledger key. Safe to call
// repeatedly with the same key: last write wins, never a duplicate row.
func (s *Service) Award(ctx context.Context, userID, eventID, dataSourceID string, date time.Time, amount int64) error {
	if userID == "" || eventID == "" || dataSourceID == "" {
		return fmt.Errorf("%w: userID, eventID and dataSourceID are required", repository.ErrInvalidInput)
	}
	if amount < 0 {
		return fmt.Errorf("%w: negative amount", repository.ErrInvalidInput)
	}
	return s.repo.Upsert(ctx, repository.PointRecord{
		UserID:       userID,
		EventID:      eventID,
		DataSourceID: dataSourceID,
		Date:         date,
		Amount:       amount,
	})
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	Activities int // activities consumed from the provider
	Days       int // distinct days written to the ledger
	Points     int64
}

// Ingest consumes a provider's activity sequence for one user and event,
// folds activities into per-day point totals, and upserts one ledger row per
// day. Duplicate deliveries are harmless: the recomputed day total replaces
// the previous one.
func (s *Service) Ingest(ctx context.Context, userID, eventID string, activities iter.Seq2[provider.Activity, error]) (IngestResult, error) {
	var res IngestResult

	type dayKey struct {
		source string
		date   time.Time
	}
	totals := make(map[dayKey]int64)
	seen := make(map[string]struct{})

	for act, err := range activities {
		if err != nil {
			return res, err
		}
		// Provider-scoped external id dedup within the window.
		id := act.Provider + ":" + act.ExternalID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		res.Activities++
		totals[dayKey{act.Provider, act.OccurredOn.UTC().Truncate(24 * time.Hour)}] += s.rates.Points(act.Metric, act.Value)
	}

	log := logger.FromWithFields(ctx, logger.Component("ledger"), logger.UserID(userID), logger.EventID(eventID))
	for k, points := range totals {
		if err := s.Award(ctx, userID, eventID, k.source, k.date, points); err != nil {
			return res, fmt.Errorf("award %s %s: %w", k.source, k.date.Format("2006-01-02"), err)
		}
		res.Days++
		res.Points += points
		log.Debug("ledger day written", logger.DataSource(k.source), logger.Date(k.date), logger.Points(points))
	}
	return res, nil
}

// History lists a user's ledger rows for an event, newest day first.
func (s *Service) History(ctx context.Context, userID, eventID string) ([]repository.PointRecord, error) {
	return s.repo.ListByUserEvent(ctx, userID, eventID)
}

// Reverse removes one ledger row. Administrative use only; the normal write
// path never deletes.
func (s *Service) Reverse(ctx context.Context, key repository.Key) error {
	return s.repo.Delete(ctx, key)
}
