package ledger

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/dropDatabas3/fitledger/internal/provider"
	"github.com/dropDatabas3/fitledger/internal/store/adapters/memory"
)

var testRates = Rates{PointsPerKm: 10, PointsPerKStep: 1, PointsPerMin: 2}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func seq(activities []provider.Activity, failAfter int, failErr error) iter.Seq2[provider.Activity, error] {
	return func(yield func(provider.Activity, error) bool) {
		for i, a := range activities {
			if failErr != nil && i == failAfter {
				yield(provider.Activity{}, failErr)
				return
			}
			if !yield(a, nil) {
				return
			}
		}
	}
}

func TestAward_UpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	repo := memory.New().Ledger()
	svc := New(repo, testRates)
	ctx := context.Background()
	d := day("2026-03-01")

	for _, amount := range []int64{50, 50, 120} {
		if err := svc.Award(ctx, "u1", "ev1", "strava", d, amount); err != nil {
			t.Fatalf("Award err: %v", err)
		}
	}

	rows, err := svc.History(ctx, "u1", "ev1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after repeated upserts, got %d", len(rows))
	}
	if rows[0].Amount != 120 {
		t.Fatalf("expected last write to win (120), got %d", rows[0].Amount)
	}
}

func TestAward_RejectsInvalidInput(t *testing.T) {
	t.Parallel()
	svc := New(memory.New().Ledger(), testRates)
	ctx := context.Background()
	d := day("2026-03-01")

	if err := svc.Award(ctx, "", "ev1", "strava", d, 10); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if err := svc.Award(ctx, "u1", "ev1", "strava", d, -5); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestRates_Points(t *testing.T) {
	t.Parallel()
	cases := []struct {
		metric provider.Metric
		value  float64
		want   int64
	}{
		{provider.MetricDistanceKm, 5.9, 50},   // floor(5.9) * 10
		{provider.MetricSteps, 12500, 12},      // floor(12.5) * 1
		{provider.MetricDurationMin, 45.7, 90}, // floor(45.7) * 2
		{provider.Metric("unknown"), 100, 0},
	}
	for _, c := range cases {
		if got := testRates.Points(c.metric, c.value); got != c.want {
			t.Fatalf("Points(%s, %v) = %d, want %d", c.metric, c.value, got, c.want)
		}
	}
}

func TestIngest_FoldsPerDayAndDedups(t *testing.T) {
	t.Parallel()
	repo := memory.New().Ledger()
	svc := New(repo, testRates)
	ctx := context.Background()

	acts := []provider.Activity{
		{ExternalID: "a1", OccurredOn: day("2026-03-01"), Metric: provider.MetricDistanceKm, Value: 5, Provider: "strava"},
		{ExternalID: "a2", OccurredOn: day("2026-03-01"), Metric: provider.MetricDistanceKm, Value: 3, Provider: "strava"},
		{ExternalID: "a1", OccurredOn: day("2026-03-01"), Metric: provider.MetricDistanceKm, Value: 5, Provider: "strava"}, // duplicate delivery
		{ExternalID: "a3", OccurredOn: day("2026-03-02"), Metric: provider.MetricDistanceKm, Value: 2, Provider: "strava"},
	}

	res, err := svc.Ingest(ctx, "u1", "ev1", seq(acts, -1, nil))
	if err != nil {
		t.Fatalf("Ingest err: %v", err)
	}
	if res.Activities != 3 {
		t.Fatalf("expected 3 unique activities, got %d", res.Activities)
	}
	if res.Days != 2 {
		t.Fatalf("expected 2 ledger days, got %d", res.Days)
	}
	if res.Points != 100 {
		t.Fatalf("expected 100 points total, got %d", res.Points)
	}

	sum, err := repo.SumBySourceAndDate(ctx, "strava", day("2026-03-01"))
	if err != nil {
		t.Fatalf("Sum err: %v", err)
	}
	if sum != 80 {
		t.Fatalf("day total = %d, want 80", sum)
	}
}

func TestIngest_ReRunReplacesDayTotals(t *testing.T) {
	t.Parallel()
	repo := memory.New().Ledger()
	svc := New(repo, testRates)
	ctx := context.Background()

	acts := []provider.Activity{
		{ExternalID: "a1", OccurredOn: day("2026-03-01"), Metric: provider.MetricDistanceKm, Value: 5, Provider: "strava"},
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Ingest(ctx, "u1", "ev1", seq(acts, -1, nil)); err != nil {
			t.Fatalf("Ingest run %d err: %v", i, err)
		}
	}

	rows, _ := svc.History(ctx, "u1", "ev1")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after re-runs, got %d", len(rows))
	}
	if rows[0].Amount != 50 {
		t.Fatalf("expected 50 points, got %d", rows[0].Amount)
	}
}

func TestIngest_PropagatesProviderError(t *testing.T) {
	t.Parallel()
	svc := New(memory.New().Ledger(), testRates)

	acts := []provider.Activity{
		{ExternalID: "a1", OccurredOn: day("2026-03-01"), Metric: provider.MetricDistanceKm, Value: 5, Provider: "strava"},
		{ExternalID: "a2", OccurredOn: day("2026-03-01"), Metric: provider.MetricDistanceKm, Value: 3, Provider: "strava"},
	}
	_, err := svc.Ingest(context.Background(), "u1", "ev1", seq(acts, 1, provider.ErrRateLimited))
	if !errors.Is(err, provider.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
