// Package admin expone la superficie operativa: aggregation runs, sweeps,
// awards manuales y consulta de snapshots. Protegida por API key.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	httperrors "github.com/dropDatabas3/fitledger/internal/http/errors"
	"github.com/dropDatabas3/fitledger/internal/ledger"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/pipeline"
	"github.com/dropDatabas3/fitledger/internal/syncer"
	"github.com/dropDatabas3/fitledger/internal/tracker"
)

// Controller agrupa las operaciones de operador.
type Controller struct {
	aggregator *tracker.Aggregator
	syncer     *syncer.Syncer
	pipeline   *pipeline.Pipeline
	ledger     *ledger.Service
	snapshots  repository.SnapshotRepository
	batchSize  int
}

func New(agg *tracker.Aggregator, sync *syncer.Syncer, pipe *pipeline.Pipeline, svc *ledger.Service, snaps repository.SnapshotRepository, batchSize int) *Controller {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Controller{
		aggregator: agg,
		syncer:     sync,
		pipeline:   pipe,
		ledger:     svc,
		snapshots:  snaps,
		batchSize:  batchSize,
	}
}

// parseDate acepta YYYY-MM-DD; vacío significa hoy (UTC).
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	return time.Parse("2006-01-02", s)
}

// Aggregate maneja POST /admin/aggregate?date=YYYY-MM-DD
func (c *Controller) Aggregate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("date must be YYYY-MM-DD"))
		return
	}

	report := c.aggregator.Run(r.Context(), date)

	type providerOut struct {
		Provider string `json:"provider"`
		Points   int64  `json:"points"`
		Error    string `json:"error,omitempty"`
	}
	out := struct {
		Status    string        `json:"status"`
		Date      string        `json:"date"`
		Providers []providerOut `json:"providers"`
	}{
		Status: string(report.Status()),
		Date:   date.Format("2006-01-02"),
	}
	for _, pr := range report.Results {
		po := providerOut{Provider: pr.Provider, Points: pr.TotalPoints}
		if pr.Err != nil {
			po.Error = pr.Err.Error()
		}
		out.Providers = append(out.Providers, po)
	}

	status := http.StatusOK
	if report.Status() == tracker.StatusPartialFailure {
		status = http.StatusMultiStatus
	}
	httperrors.WriteJSON(w, status, out)
}

// Sync maneja POST /admin/sync?event_id=...
// Dispara un sweep completo de providers.
func (c *Controller) Sync(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("event_id is required"))
		return
	}

	report := c.syncer.Sweep(r.Context(), eventID)

	type resultOut struct {
		UserID         string `json:"user_id,omitempty"`
		Provider       string `json:"provider"`
		Activities     int    `json:"activities"`
		Points         int64  `json:"points"`
		NeedsReconnect bool   `json:"needs_reconnect,omitempty"`
		Error          string `json:"error,omitempty"`
	}
	out := struct {
		Synced  int         `json:"synced"`
		Failed  int         `json:"failed"`
		Results []resultOut `json:"results"`
	}{}
	for _, res := range report.Results {
		ro := resultOut{
			UserID:         res.UserID,
			Provider:       res.Provider,
			Activities:     res.Ingested.Activities,
			Points:         res.Ingested.Points,
			NeedsReconnect: res.NeedsReconnect,
		}
		if res.Err != nil {
			ro.Error = res.Err.Error()
			out.Failed++
		} else {
			out.Synced++
		}
		out.Results = append(out.Results, ro)
	}
	httperrors.WriteJSON(w, http.StatusOK, out)
}

// Award maneja POST /admin/award: otorgamiento manual de puntos.
func (c *Controller) Award(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID       string `json:"user_id"`
		EventID      string `json:"event_id"`
		DataSourceID string `json:"data_source_id"`
		Date         string `json:"date"`
		Amount       int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid JSON body"))
		return
	}
	date, err := parseDate(in.Date)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("date must be YYYY-MM-DD"))
		return
	}

	if err := c.ledger.Award(r.Context(), in.UserID, in.EventID, in.DataSourceID, date, in.Amount); err != nil {
		logger.From(r.Context()).Warn("manual award rejected", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "awarded"})
}

// SweepPipeline maneja POST /admin/pipeline/sweep
func (c *Controller) SweepPipeline(w http.ResponseWriter, r *http.Request) {
	report, err := c.pipeline.Sweep(r.Context(), c.batchSize)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithDetail(err.Error()))
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]int{
		"events":    report.Events,
		"completed": report.Completed,
		"failures":  report.Failures,
	})
}

// Snapshots maneja GET /admin/snapshots?date=YYYY-MM-DD
func (c *Controller) Snapshots(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("date must be YYYY-MM-DD"))
		return
	}

	snaps, err := c.snapshots.ListByDate(r.Context(), date)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	type snapOut struct {
		DataSourceID string `json:"data_source_id"`
		Date         string `json:"date"`
		TotalPoints  int64  `json:"total_points"`
	}
	out := make([]snapOut, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapOut{
			DataSourceID: s.DataSourceID,
			Date:         s.Date.Format("2006-01-02"),
			TotalPoints:  s.TotalPoints,
		})
	}
	httperrors.WriteJSON(w, http.StatusOK, out)
}
