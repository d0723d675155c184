// Package health contiene el controller para health checks.
package health

import (
	"context"
	"net/http"

	httperrors "github.com/dropDatabas3/fitledger/internal/http/errors"
)

// Controller maneja las rutas de health check.
type Controller struct {
	ping    func(ctx context.Context) error
	version string
}

// New crea el controller. ping puede ser nil (driver memory).
func New(ping func(ctx context.Context) error, version string) *Controller {
	return &Controller{ping: ping, version: version}
}

type response struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Storage string `json:"storage"`
}

// Readyz maneja GET /readyz
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ready", Version: c.version, Storage: "ok"}
	status := http.StatusOK

	if c.ping != nil {
		if err := c.ping(r.Context()); err != nil {
			resp.Status = "unavailable"
			resp.Storage = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	if resp.Version != "" {
		w.Header().Set("X-Service-Version", resp.Version)
	}
	httperrors.WriteJSON(w, status, resp)
}
