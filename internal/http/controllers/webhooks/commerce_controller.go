package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	httperrors "github.com/dropDatabas3/fitledger/internal/http/errors"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/pipeline"
)

// CommerceController maneja POST /webhooks/commerce: notificaciones de
// órdenes de la plataforma de commerce, firmadas con HMAC-SHA256.
type CommerceController struct {
	pipeline *pipeline.Pipeline
	secret   []byte
}

func NewCommerce(p *pipeline.Pipeline, secret string) *CommerceController {
	return &CommerceController{pipeline: p, secret: []byte(secret)}
}

// Receive valida la firma, persiste el evento y corre la etapa ack en línea.
// Las etapas restantes quedan para el sweeper.
func (c *CommerceController) Receive(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unreadable body"))
		return
	}

	if !c.validSignature(r.Header.Get("X-Webhook-Signature"), body) {
		log.Warn("commerce webhook signature rejected")
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("invalid signature"))
		return
	}

	ev, err := c.pipeline.Ingest(r.Context(), body)
	if err != nil {
		log.Warn("commerce webhook rejected", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid notification"))
		return
	}

	// La etapa ack corre en línea; un fallo ahí no invalida la recepción.
	_ = c.pipeline.RunStage(r.Context(), ev, repository.StageAck)

	httperrors.WriteJSON(w, http.StatusAccepted, map[string]string{
		"id":           ev.ID,
		"order_number": ev.OrderNumber,
	})
}

// validSignature compara HMAC-SHA256(body, secret) en tiempo constante.
func (c *CommerceController) validSignature(header string, body []byte) bool {
	if len(c.secret) == 0 || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	want := mac.Sum(nil)
	got, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}
