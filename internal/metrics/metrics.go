package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the sync, aggregation and webhook pipeline paths.
// Defined in a standalone package so jobs and HTTP packages can share them
// without import cycles.

var (
	SyncResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitledger_provider_sync_total",
		Help: "Resultados de syncs por provider (result: ok|auth|rate_limited|unavailable|error)",
	}, []string{"provider", "result"})

	ActivitiesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitledger_activities_ingested_total",
		Help: "Actividades normalizadas consumidas por provider",
	}, []string{"provider"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitledger_token_refresh_total",
		Help: "Refreshes de credenciales por provider (result: ok|expired|error)",
	}, []string{"provider", "result"})

	AggregationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fitledger_aggregation_duration_seconds",
		Help:    "Duración del run del daily tracker aggregator",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	AggregationRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitledger_aggregation_runs_total",
		Help: "Runs del aggregator por estado (success|partial_failure)",
	}, []string{"status"})

	WebhookEventsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fitledger_webhook_events_received_total",
		Help: "Eventos de commerce persistidos",
	})

	PipelineStageTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitledger_pipeline_stage_transitions_total",
		Help: "Transiciones de etapa del pipeline (stage: ack|ledger|crm; status: done|failed)",
	}, []string{"stage", "status"})
)

// Register registers all collectors on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		SyncResults,
		ActivitiesIngested,
		TokenRefreshes,
		AggregationDuration,
		AggregationRuns,
		WebhookEventsReceived,
		PipelineStageTransitions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
