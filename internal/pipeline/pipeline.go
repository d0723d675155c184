// Package pipeline persiste notificaciones de commerce y avanza sus tres
// etapas (ack, ledger, crm) de forma independiente e idempotente. Cada etapa
// tiene su propia bandera de estado; un fallo en una nunca toca las otras
// dos, y re-procesar una etapa ya terminada es un no-op.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/fitledger/internal/cache"
	"github.com/dropDatabas3/fitledger/internal/crm"
	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	"github.com/dropDatabas3/fitledger/internal/ledger"
	"github.com/dropDatabas3/fitledger/internal/metrics"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/provider"
	"github.com/dropDatabas3/fitledger/internal/util"
)

// replayTTL acota la ventana de dedup rápido en cache; la unicidad real la
// garantiza el constraint por order_number en el repositorio.
const replayTTL = 24 * time.Hour

// Notification es el payload mínimo que el pipeline espera de commerce.
type Notification struct {
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	UserID        string `json:"user_id"`
	EventID       string `json:"event_id"`
	BonusPoints   int64  `json:"bonus_points"`
}

// Pipeline coordina la persistencia y el avance de etapas.
type Pipeline struct {
	events repository.WebhookEventRepository
	ledger *ledger.Service
	crm    crm.Client
	cache  cache.Client
	now    func() time.Time
}

// New crea el pipeline. cache puede ser nil (sin dedup rápido).
func New(events repository.WebhookEventRepository, svc *ledger.Service, crmClient crm.Client, c cache.Client) *Pipeline {
	if crmClient == nil {
		crmClient = crm.NopClient{}
	}
	return &Pipeline{
		events: events,
		ledger: svc,
		crm:    crmClient,
		cache:  c,
		now:    time.Now,
	}
}

// Ingest valida y persiste una notificación con las tres etapas en pending.
// Una notificación repetida (mismo order number) retorna el evento existente
// sin efecto alguno.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte) (*repository.WebhookEvent, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("pipeline: decode notification: %w", err)
	}
	if n.OrderNumber == "" {
		return nil, errors.New("pipeline: notification missing order_number")
	}

	log := logger.Named("pipeline").With(logger.OrderNumber(n.OrderNumber))
	cacheKey := "webhook:order:" + n.OrderNumber

	// Fast path de replays. La cache se marca recién después de persistir:
	// si el Create falla, el reintento del emisor no puede quedar suprimido
	// por una marca huérfana. El UNIQUE de order_number manda siempre.
	if p.cache != nil {
		if _, err := p.cache.Get(ctx, cacheKey); err == nil {
			if stored, err := p.events.GetByOrderNumber(ctx, n.OrderNumber); err == nil {
				log.Debug("duplicate notification short-circuited by cache")
				return stored, nil
			}
		}
	}

	ev := repository.WebhookEvent{
		ID:            uuid.NewString(),
		OrderNumber:   n.OrderNumber,
		CustomerEmail: n.CustomerEmail,
		CustomerName:  n.CustomerName,
		UserID:        n.UserID,
		EventID:       n.EventID,
		Payload:       raw,
		AckStatus:     repository.StagePending,
		LedgerStatus:  repository.StagePending,
		CRMSyncStatus: repository.StagePending,
		ReceivedAt:    p.now(),
		UpdatedAt:     p.now(),
	}
	if err := p.events.Create(ctx, ev); err != nil {
		if repository.IsConflict(err) {
			p.markSeen(ctx, cacheKey)
			log.Debug("duplicate notification, returning stored event")
			return p.events.GetByOrderNumber(ctx, n.OrderNumber)
		}
		return nil, fmt.Errorf("pipeline: persist event: %w", err)
	}
	p.markSeen(ctx, cacheKey)

	metrics.WebhookEventsReceived.Inc()
	log.Info("commerce notification persisted", logger.ID(ev.ID))
	return &ev, nil
}

// markSeen registra la orden en la ventana de dedup. Best effort: la cache
// puede fallar sin afectar el ingest.
func (p *Pipeline) markSeen(ctx context.Context, key string) {
	if p.cache == nil {
		return
	}
	_, _ = p.cache.Add(ctx, key, "1", replayTTL)
}

// RunStage ejecuta una etapa sobre un evento. Si la etapa ya está en done el
// llamado es un no-op. Un error deja la etapa en failed (con el mensaje) y no
// modifica las otras dos.
func (p *Pipeline) RunStage(ctx context.Context, ev *repository.WebhookEvent, stage repository.Stage) error {
	if ev.StageOf(stage).Terminal() {
		return nil
	}

	log := logger.Named("pipeline").With(
		logger.ID(ev.ID),
		logger.OrderNumber(ev.OrderNumber),
		logger.Stage(string(stage)),
	)

	var err error
	switch stage {
	case repository.StageAck:
		err = p.ack(ev)
	case repository.StageLedger:
		err = p.reconcile(ctx, ev)
	case repository.StageCRM:
		err = p.syncCRM(ctx, ev)
	default:
		return fmt.Errorf("pipeline: unknown stage %q", stage)
	}

	if err != nil {
		metrics.PipelineStageTransitions.WithLabelValues(string(stage), "failed").Inc()
		log.Warn("stage failed", logger.Err(err))
		if serr := p.events.SetStage(ctx, ev.ID, stage, repository.StageFailed, err.Error()); serr != nil {
			return fmt.Errorf("pipeline: record stage failure: %w", serr)
		}
		return err
	}

	if err := p.events.SetStage(ctx, ev.ID, stage, repository.StageDone, ""); err != nil {
		return fmt.Errorf("pipeline: record stage completion: %w", err)
	}
	metrics.PipelineStageTransitions.WithLabelValues(string(stage), "done").Inc()
	log.Info("stage completed")
	return nil
}

// ack valida que el evento tenga los campos de orden y cliente requeridos.
func (p *Pipeline) ack(ev *repository.WebhookEvent) error {
	if ev.OrderNumber == "" {
		return errors.New("event missing order number")
	}
	if ev.CustomerEmail == "" {
		return errors.New("event missing customer email")
	}
	return nil
}

// reconcile otorga los puntos de bonificación de la orden en el ledger como
// entrada manual. El upsert del ledger hace el otorgamiento idempotente.
func (p *Pipeline) reconcile(ctx context.Context, ev *repository.WebhookEvent) error {
	if ev.UserID == "" || ev.EventID == "" {
		return errors.New("event not linked to a user/event, cannot reconcile")
	}
	var n Notification
	if err := json.Unmarshal(ev.Payload, &n); err != nil {
		return fmt.Errorf("decode stored payload: %w", err)
	}
	day := ev.ReceivedAt.UTC().Truncate(24 * time.Hour)
	if err := p.ledger.Award(ctx, ev.UserID, ev.EventID, provider.ManualKey, day, n.BonusPoints); err != nil {
		return fmt.Errorf("award order bonus: %w", err)
	}
	return nil
}

// syncCRM empuja el contacto de la orden al CRM.
func (p *Pipeline) syncCRM(ctx context.Context, ev *repository.WebhookEvent) error {
	logger.Named("pipeline").Debug("pushing contact to crm",
		logger.OrderNumber(ev.OrderNumber),
		logger.String("email", util.MaskEmail(ev.CustomerEmail)),
	)
	return p.crm.UpsertContact(ctx, crm.Contact{
		Email:       ev.CustomerEmail,
		Name:        ev.CustomerName,
		OrderNumber: ev.OrderNumber,
	})
}

// stages en orden de barrido. El orden es solo cosmético: las etapas son
// independientes.
var stages = []repository.Stage{repository.StageAck, repository.StageLedger, repository.StageCRM}

// SweepReport resume un barrido del sweeper.
type SweepReport struct {
	Events    int
	Completed int
	Failures  int
}

// Sweep re-procesa hasta batchSize eventos incompletos. Cada etapa no
// terminal se reintenta; las terminales se saltan.
func (p *Pipeline) Sweep(ctx context.Context, batchSize int) (SweepReport, error) {
	events, err := p.events.ListIncomplete(ctx, batchSize)
	if err != nil {
		return SweepReport{}, fmt.Errorf("pipeline: list incomplete events: %w", err)
	}

	var report SweepReport
	report.Events = len(events)
	for i := range events {
		ev := &events[i]
		for _, stage := range stages {
			if ev.StageOf(stage).Terminal() {
				continue
			}
			if err := p.RunStage(ctx, ev, stage); err != nil {
				report.Failures++
				continue
			}
			setStage(ev, stage, repository.StageDone)
		}
		if ev.Complete() {
			report.Completed++
		}
	}
	return report, nil
}

func setStage(ev *repository.WebhookEvent, stage repository.Stage, status repository.StageStatus) {
	switch stage {
	case repository.StageAck:
		ev.AckStatus = status
	case repository.StageLedger:
		ev.LedgerStatus = status
	case repository.StageCRM:
		ev.CRMSyncStatus = status
	}
}
