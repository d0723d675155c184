package repository

import (
	"context"
	"time"
)

// StageStatus es el estado de una etapa del pipeline de webhooks.
// "failed" es distinto de "pending" para poder diferenciar "nunca intentado"
// de "intentado y falló"; ambos son re-barridos por el sweeper.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
)

// Valid reporta si s es un estado conocido.
func (s StageStatus) Valid() bool {
	switch s {
	case StagePending, StageDone, StageFailed:
		return true
	}
	return false
}

// Terminal reporta si la etapa ya no necesita reprocesarse.
func (s StageStatus) Terminal() bool { return s == StageDone }

// Stage nombra una de las tres etapas independientes del pipeline.
type Stage string

const (
	StageAck    Stage = "ack"
	StageLedger Stage = "ledger"
	StageCRM    Stage = "crm"
)

// WebhookEvent es una notificación de commerce persistida, con una bandera
// de estado independiente por etapa. No existe un flag global "processed":
// la completitud total es la conjunción de las tres etapas en done, calculada
// por el caller, nunca almacenada.
type WebhookEvent struct {
	ID            string
	OrderNumber   string
	CustomerEmail string
	CustomerName  string
	UserID        string // usuario interno resuelto, puede estar vacío al ingreso
	EventID       string // evento de puntos al que la orden da derecho
	Payload       []byte // cuerpo crudo de la notificación

	AckStatus     StageStatus
	LedgerStatus  StageStatus
	CRMSyncStatus StageStatus

	// LastError guarda el último error por etapa (diagnóstico, no control de flujo).
	LastError map[Stage]string

	ReceivedAt time.Time
	UpdatedAt  time.Time
}

// StageOf retorna el estado de la etapa pedida.
func (e *WebhookEvent) StageOf(stage Stage) StageStatus {
	switch stage {
	case StageAck:
		return e.AckStatus
	case StageLedger:
		return e.LedgerStatus
	case StageCRM:
		return e.CRMSyncStatus
	}
	return ""
}

// Complete reporta si las tres etapas están en done.
func (e *WebhookEvent) Complete() bool {
	return e.AckStatus.Terminal() && e.LedgerStatus.Terminal() && e.CRMSyncStatus.Terminal()
}

// WebhookEventRepository define operaciones sobre eventos de webhook.
type WebhookEventRepository interface {
	// Create persiste un evento nuevo con las tres etapas en pending.
	// Retorna ErrConflict si ya existe un evento con ese OrderNumber.
	Create(ctx context.Context, ev WebhookEvent) error

	// Get busca por ID. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*WebhookEvent, error)

	// GetByOrderNumber busca por número de orden.
	GetByOrderNumber(ctx context.Context, orderNumber string) (*WebhookEvent, error)

	// ListIncomplete lista eventos con al menos una etapa fuera de done,
	// más antiguos primero, hasta limit.
	ListIncomplete(ctx context.Context, limit int) ([]WebhookEvent, error)

	// SetStage actualiza UNA etapa (y su último error). Nunca toca las otras.
	SetStage(ctx context.Context, id string, stage Stage, status StageStatus, lastErr string) error
}
