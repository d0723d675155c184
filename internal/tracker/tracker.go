// Package tracker implements the daily aggregation job: for a target date it
// sums each non-manual provider's ledger rows into one immutable snapshot row
// per (data source, date). The job is re-runnable: snapshots upsert, never
// append, and a provider failure never blocks the remaining providers.
package tracker

import (
	"context"
	"time"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	"github.com/dropDatabas3/fitledger/internal/metrics"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/provider"
)

// Status is the overall outcome of one aggregation run.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialFailure Status = "partial_failure"
)

// ProviderResult is the per-provider outcome of a run.
type ProviderResult struct {
	Provider    string
	TotalPoints int64
	Err         error
}

// Report is the outcome of one aggregation run.
type Report struct {
	Date    time.Time
	Results []ProviderResult
}

// Status derives the overall outcome: partial failure if any provider failed.
func (r Report) Status() Status {
	for _, pr := range r.Results {
		if pr.Err != nil {
			return StatusPartialFailure
		}
	}
	return StatusSuccess
}

// Failed returns the results of providers that failed.
func (r Report) Failed() []ProviderResult {
	var out []ProviderResult
	for _, pr := range r.Results {
		if pr.Err != nil {
			out = append(out, pr)
		}
	}
	return out
}

// Aggregator runs the daily snapshot job.
type Aggregator struct {
	registry  *provider.Registry
	ledger    repository.LedgerRepository
	snapshots repository.SnapshotRepository
}

// New creates an Aggregator.
func New(registry *provider.Registry, ledger repository.LedgerRepository, snapshots repository.SnapshotRepository) *Aggregator {
	return &Aggregator{registry: registry, ledger: ledger, snapshots: snapshots}
}

// Run aggregates the target date. Providers are processed independently: a
// failure summing or writing one provider is recorded in the report and the
// loop moves on. No snapshot is written for a failed provider. A provider
// with zero ledger rows still gets a snapshot with an explicit zero, so
// consumers can tell "no activity" from "not yet aggregated".
func (a *Aggregator) Run(ctx context.Context, date time.Time) Report {
	started := time.Now()
	log := logger.FromWithFields(ctx, logger.Component("tracker"), logger.Date(date))

	report := Report{Date: date}
	for _, key := range a.registry.Keys() {
		pr := ProviderResult{Provider: key}

		sum, err := a.ledger.SumBySourceAndDate(ctx, key, date)
		if err == nil {
			pr.TotalPoints = sum
			err = a.snapshots.Upsert(ctx, repository.DailyTrackerSnapshot{
				DataSourceID: key,
				Date:         date,
				TotalPoints:  sum,
			})
		}
		if err != nil {
			pr.Err = err
			log.Error("provider aggregation failed", logger.Provider(key), logger.Err(err))
		} else {
			log.Info("snapshot written", logger.Provider(key), logger.Points(sum))
		}
		report.Results = append(report.Results, pr)
	}

	metrics.AggregationDuration.Observe(time.Since(started).Seconds())
	metrics.AggregationRuns.WithLabelValues(string(report.Status())).Inc()
	return report
}
