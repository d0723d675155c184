// Package router arma el chi.Router del servicio con sus middleware chains.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/admin"
	connectctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/connect"
	healthctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/health"
	webhookctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/webhooks"
	mw "github.com/dropDatabas3/fitledger/internal/http/middlewares"
	"github.com/dropDatabas3/fitledger/internal/rate"
)

// Deps contiene los controllers y middlewares del router.
type Deps struct {
	Health   *healthctrl.Controller
	Connect  *connectctrl.Controller
	Provider *webhookctrl.ProviderController
	Commerce *webhookctrl.CommerceController
	Admin    *adminctrl.Controller

	AdminAPIKey string
	Limiter     rate.Limiter // nil desactiva rate limiting
}

// New construye el router completo.
func New(deps Deps) chi.Router {
	r := chi.NewRouter()

	base := []mw.Middleware{
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
	}
	public := append(append([]mw.Middleware{}, base...), mw.WithRateLimit(deps.Limiter))

	// Health y metrics: sin logging (muy frecuentes), sin rate limit.
	r.Method(http.MethodGet, "/readyz", mw.Chain(
		http.HandlerFunc(deps.Health.Readyz),
		mw.WithRecover(), mw.WithRequestID(),
	))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Connect flow
	r.Method(http.MethodGet, "/connect/{provider}", mw.ChainFunc(deps.Connect.Start, public...))
	r.Method(http.MethodGet, "/connect/{provider}/callback", mw.ChainFunc(deps.Connect.Callback, public...))
	r.Method(http.MethodDelete, "/connect/{provider}", mw.ChainFunc(deps.Connect.Disconnect, public...))

	// Webhooks de providers y de commerce
	r.Method(http.MethodGet, "/webhooks/{provider}", mw.ChainFunc(deps.Provider.Verify, public...))
	r.Method(http.MethodPost, "/webhooks/commerce", mw.ChainFunc(deps.Commerce.Receive, public...))
	r.Method(http.MethodPost, "/webhooks/{provider}", mw.ChainFunc(deps.Provider.Receive, public...))

	// Superficie de operador, protegida por API key
	admin := append(append([]mw.Middleware{}, base...), mw.WithAdminKey(deps.AdminAPIKey))
	r.Method(http.MethodPost, "/admin/aggregate", mw.ChainFunc(deps.Admin.Aggregate, admin...))
	r.Method(http.MethodPost, "/admin/sync", mw.ChainFunc(deps.Admin.Sync, admin...))
	r.Method(http.MethodPost, "/admin/award", mw.ChainFunc(deps.Admin.Award, admin...))
	r.Method(http.MethodPost, "/admin/pipeline/sweep", mw.ChainFunc(deps.Admin.SweepPipeline, admin...))
	r.Method(http.MethodGet, "/admin/snapshots", mw.ChainFunc(deps.Admin.Snapshots, admin...))

	return r
}
