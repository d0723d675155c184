// Package webhooks recibe notificaciones push: las de providers de actividad
// (verificadas por el adapter) y la de commerce (verificada por HMAC propio,
// alimenta el pipeline de etapas).
package webhooks

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/fitledger/internal/cache"
	httperrors "github.com/dropDatabas3/fitledger/internal/http/errors"
	"github.com/dropDatabas3/fitledger/internal/metrics"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/provider"
)

// maxWebhookBody acota el cuerpo aceptado de un webhook.
const maxWebhookBody = 1 << 20

// deliveryTTL es la ventana de dedup de entregas repetidas.
const deliveryTTL = 24 * time.Hour

// ProviderController maneja GET/POST /webhooks/{provider}.
type ProviderController struct {
	registry *provider.Registry
	cache    cache.Client // nil desactiva el dedup de replays
}

func NewProvider(registry *provider.Registry, c cache.Client) *ProviderController {
	return &ProviderController{registry: registry, cache: c}
}

// Verify maneja el GET de verificación de suscripción (challenge echo).
func (c *ProviderController) Verify(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "provider")
	adapter, err := c.registry.Get(key)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("unknown provider"))
		return
	}

	q := r.URL.Query()
	res := adapter.VerifyWebhook(provider.WebhookCheck{
		Challenge:   q.Get("hub.challenge"),
		VerifyToken: q.Get("hub.verify_token"),
	})
	if !res.OK {
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("verification failed"))
		return
	}
	if res.EchoChallenge != "" {
		httperrors.WriteJSON(w, http.StatusOK, map[string]string{"hub.challenge": res.EchoChallenge})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Receive maneja el POST de notificaciones de actividad. Solo valida la
// firma y responde rápido; el contenido real se recoge en el próximo sync.
func (c *ProviderController) Receive(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "provider")
	log := logger.From(r.Context()).With(logger.Provider(key))

	adapter, err := c.registry.Get(key)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("unknown provider"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unreadable body"))
		return
	}

	res := adapter.VerifyWebhook(provider.WebhookCheck{
		Signature: signatureHeader(r, key),
		Body:      body,
	})
	if !res.OK {
		log.Warn("webhook signature rejected")
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("invalid signature"))
		return
	}

	// Replays se reconocen sin reprocesar: mismo body, misma entrega.
	if c.cache != nil {
		sum := sha256.Sum256(body)
		dkey := "webhook:delivery:" + key + ":" + hex.EncodeToString(sum[:8])
		if fresh, err := c.cache.Add(r.Context(), dkey, "1", deliveryTTL); err == nil && !fresh {
			log.Info("provider webhook replay ignored")
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	metrics.WebhookEventsReceived.Inc()
	log.Info("provider webhook accepted")
	w.WriteHeader(http.StatusNoContent)
}

// signatureHeader extrae el header de firma propio de cada provider.
func signatureHeader(r *http.Request, providerKey string) string {
	switch providerKey {
	case "fitbit":
		return r.Header.Get("X-Fitbit-Signature")
	case "garmin":
		return r.Header.Get("X-Garmin-Signature")
	default:
		return r.Header.Get("X-Hub-Signature")
	}
}
