// Package connect implementa el flujo de conexión OAuth de providers: el
// redirect inicial con state firmado y el callback que canjea el código por
// credenciales persistidas.
package connect

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	httperrors "github.com/dropDatabas3/fitledger/internal/http/errors"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/provider"
	"github.com/dropDatabas3/fitledger/internal/security/statetoken"
	"github.com/dropDatabas3/fitledger/internal/util"
)

// Controller maneja /connect/{provider} y su callback.
type Controller struct {
	registry *provider.Registry
	creds    repository.CredentialRepository
	states   *statetoken.Issuer
	now      func() time.Time
}

func New(registry *provider.Registry, creds repository.CredentialRepository, states *statetoken.Issuer) *Controller {
	return &Controller{registry: registry, creds: creds, states: states, now: time.Now}
}

// Start maneja GET /connect/{provider}?user_id=...
// Redirige al consent screen del provider con un state firmado.
func (c *Controller) Start(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "provider")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("user_id is required"))
		return
	}

	adapter, err := c.registry.Get(key)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("unknown provider"))
		return
	}

	state, err := c.states.Issue(userID, key)
	if err != nil {
		logger.From(r.Context()).Error("issuing connect state failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	http.Redirect(w, r, adapter.AuthURL(state), http.StatusFound)
}

// Callback maneja GET /connect/{provider}/callback?code=...&state=...
// Canjea el código y persiste la credencial del usuario.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "provider")
	log := logger.From(r.Context()).With(logger.Provider(key))

	code := r.URL.Query().Get("code")
	if code == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("code is required"))
		return
	}

	claims, err := c.states.Validate(r.URL.Query().Get("state"))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("invalid or expired state"))
		return
	}
	if claims.Provider != key {
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("state/provider mismatch"))
		return
	}

	adapter, err := c.registry.Get(key)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("unknown provider"))
		return
	}

	cred, err := adapter.Authorize(r.Context(), code)
	if err != nil {
		log.Warn("authorization exchange failed", logger.UserID(claims.UserID), logger.Err(err))
		if errors.Is(err, provider.ErrAuthorization) {
			httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("provider rejected the authorization code"))
			return
		}
		httperrors.WriteError(w, httperrors.New(http.StatusBadGateway, "provider_unavailable", "provider unavailable"))
		return
	}

	now := c.now()
	err = c.creds.Upsert(r.Context(), repository.ProviderCredential{
		UserID:            claims.UserID,
		Provider:          key,
		AccessToken:       cred.AccessToken,
		AccessTokenSecret: cred.AccessTokenSecret,
		RefreshToken:      cred.RefreshToken,
		Expiry:            cred.Expiry,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		log.Error("persisting credential failed", logger.UserID(claims.UserID), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	log.Info("provider connected",
		logger.UserID(claims.UserID),
		logger.String("access_token", util.MaskToken(cred.AccessToken)),
	)
	httperrors.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "connected",
		"provider": key,
		"user_id":  claims.UserID,
	})
}

// Disconnect maneja DELETE /connect/{provider}?user_id=...
func (c *Controller) Disconnect(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "provider")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("user_id is required"))
		return
	}
	if _, err := c.registry.Get(key); err != nil {
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("unknown provider"))
		return
	}
	if err := c.creds.Delete(r.Context(), userID, key); err != nil && !repository.IsNotFound(err) {
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}
