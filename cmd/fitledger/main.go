package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/fitledger/internal/cache"
	"github.com/dropDatabas3/fitledger/internal/config"
	"github.com/dropDatabas3/fitledger/internal/crm"
	"github.com/dropDatabas3/fitledger/internal/email"
	httpserver "github.com/dropDatabas3/fitledger/internal/http"
	adminctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/admin"
	connectctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/connect"
	healthctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/health"
	webhookctrl "github.com/dropDatabas3/fitledger/internal/http/controllers/webhooks"
	"github.com/dropDatabas3/fitledger/internal/http/router"
	"github.com/dropDatabas3/fitledger/internal/ledger"
	"github.com/dropDatabas3/fitledger/internal/metrics"
	"github.com/dropDatabas3/fitledger/internal/observability/logger"
	"github.com/dropDatabas3/fitledger/internal/pipeline"
	"github.com/dropDatabas3/fitledger/internal/provider"
	"github.com/dropDatabas3/fitledger/internal/provider/fitbit"
	"github.com/dropDatabas3/fitledger/internal/provider/garmin"
	"github.com/dropDatabas3/fitledger/internal/provider/strava"
	"github.com/dropDatabas3/fitledger/internal/rate"
	"github.com/dropDatabas3/fitledger/internal/security/statetoken"
	"github.com/dropDatabas3/fitledger/internal/store"
	"github.com/dropDatabas3/fitledger/internal/syncer"
	"github.com/dropDatabas3/fitledger/internal/tracker"
)

var version = "dev"

func main() {
	var (
		flagConfigPath = flag.String("config", "configs/config.yaml", "ruta a config.yaml")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			log.Printf("dotenv: cargado %s", *flagEnvFile)
		}
	}

	cfg, err := config.Load(*flagConfigPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, ServiceName: "fitledger", Version: version})
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("main")

	if err := metrics.Register(nil); err != nil {
		lg.Fatal("metrics register", logger.Err(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistencia
	stores, err := store.Open(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Postgres: struct {
			MaxConns        int
			ConnMaxLifetime string
		}{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		},
	})
	if err != nil {
		lg.Fatal("store open", logger.Err(err))
	}
	defer func() { _ = stores.Close() }()

	// Cache (dedup de webhooks repetidos)
	cacheClient, err := cache.New(cache.Config{
		Driver: cfg.Cache.Kind,
		Addr:   cfg.Cache.Redis.Addr,
		DB:     cfg.Cache.Redis.DB,
		Prefix: cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		lg.Fatal("cache", logger.Err(err))
	}
	defer func() { _ = cacheClient.Close() }()

	// Registry de providers
	registry := provider.NewRegistry()
	lookback := time.Duration(cfg.Providers.LookbackDays) * 24 * time.Hour
	if p := cfg.Providers.Strava; p.Enabled {
		mustRegister(registry, strava.New(p.ClientID, p.ClientSecret, p.RedirectURL, p.VerifyToken, lookback))
	}
	if p := cfg.Providers.Fitbit; p.Enabled {
		mustRegister(registry, fitbit.New(p.ClientID, p.ClientSecret, p.RedirectURL, lookback))
	}
	if p := cfg.Providers.Garmin; p.Enabled {
		mustRegister(registry, garmin.New(p.ConsumerKey, p.ConsumerSecret, p.RedirectURL, lookback))
	}
	lg.Info("providers registered", logger.Any("keys", registry.Keys()))

	// Servicios de dominio
	rates := ledger.Rates{
		PointsPerKm:    cfg.Providers.Strava.PointsPerKm,
		PointsPerKStep: cfg.Providers.Fitbit.PointsPerKStep,
		PointsPerMin:   cfg.Providers.Garmin.PointsPerMin,
	}
	ledgerSvc := ledger.New(stores.Ledger, rates)
	aggregator := tracker.New(registry, stores.Ledger, stores.Snapshots)
	syncSvc := syncer.New(registry, stores.Credentials, ledgerSvc)

	var crmClient crm.Client = crm.NopClient{}
	if cfg.CRM.BaseURL != "" {
		crmClient = crm.New(crm.Options{
			BaseURL: cfg.CRM.BaseURL,
			APIKey:  cfg.CRM.APIKey,
			Timeout: config.ParseDuration(cfg.CRM.Timeout, 10*time.Second),
		})
	}
	pipe := pipeline.New(stores.Webhooks, ledgerSvc, crmClient, cacheClient)

	states := statetoken.New(cfg.Providers.StateSecret, cfg.Providers.ConnectStateTTL)

	// Alertas de operador
	var alerter *email.Alerter
	if cfg.Alerts.OperatorEmail != "" && cfg.SMTP.Host != "" {
		sender := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		sender.TLSMode = cfg.SMTP.TLS
		sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		alerter = &email.Alerter{Sender: sender, Operator: cfg.Alerts.OperatorEmail}
	}

	// Rate limiting de la superficie pública
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		window := config.ParseDuration(cfg.Rate.Window, time.Minute)
		if cfg.Cache.Kind == "redis" {
			client := rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
			limiter = rate.NewRedisLimiter(client, "rl:", cfg.Rate.MaxRequests, window)
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, window)
		}
	}

	// HTTP
	mux := router.New(router.Deps{
		Health:      healthctrl.New(stores.Ping, version),
		Connect:     connectctrl.New(registry, stores.Credentials, states),
		Provider:    webhookctrl.NewProvider(registry, cacheClient),
		Commerce:    webhookctrl.NewCommerce(pipe, cfg.Pipeline.WebhookSecret),
		Admin:       adminctrl.New(aggregator, syncSvc, pipe, ledgerSvc, stores.Snapshots, cfg.Pipeline.BatchSize),
		AdminAPIKey: cfg.Server.AdminAPIKey,
		Limiter:     limiter,
	})
	srv := httpserver.NewServer(httpserver.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.ParseDuration(cfg.Server.ReadTimeout, 10*time.Second),
		WriteTimeout: config.ParseDuration(cfg.Server.WriteTimeout, 30*time.Second),
	}, mux)

	// Jobs de fondo
	go sweepLoop(ctx, pipe, config.ParseDuration(cfg.Pipeline.SweepInterval, time.Minute), cfg.Pipeline.BatchSize)
	go aggregateLoop(ctx, aggregator, alerter, cfg.Tracker.RunAt)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			lg.Fatal("http server", logger.Err(err))
		}
	case <-ctx.Done():
		lg.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Warn("shutdown", logger.Err(err))
		}
	}
}

func mustRegister(r *provider.Registry, a provider.Adapter) {
	if err := r.Register(a); err != nil {
		log.Fatalf("provider register: %v", err)
	}
}

// sweepLoop re-barre el pipeline de webhooks a intervalo fijo.
func sweepLoop(ctx context.Context, pipe *pipeline.Pipeline, interval time.Duration, batch int) {
	lg := logger.Named("sweep")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			report, err := pipe.Sweep(ctx, batch)
			if err != nil {
				lg.Error("pipeline sweep failed", logger.Err(err))
				continue
			}
			if report.Events > 0 {
				lg.Info("pipeline sweep",
					logger.Int("events", report.Events),
					logger.Int("completed", report.Completed),
					logger.Int("failures", report.Failures),
				)
			}
		}
	}
}

// aggregateLoop corre el daily aggregator a la hora configurada (HH:MM UTC)
// sobre el día anterior, y alerta al operador en partial failure.
func aggregateLoop(ctx context.Context, agg *tracker.Aggregator, alerter *email.Alerter, runAt string) {
	lg := logger.Named("tracker")
	for {
		wait := untilNext(runAt, time.Now().UTC())
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		date := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
		report := agg.Run(ctx, date)
		if report.Status() == tracker.StatusPartialFailure && alerter != nil {
			if err := alerter.AggregationPartialFailure(report); err != nil {
				lg.Warn("operator alert failed", logger.Err(err))
			}
		}
	}
}

// untilNext calcula cuánto falta para la próxima ocurrencia de "HH:MM" UTC.
func untilNext(runAt string, now time.Time) time.Duration {
	t, err := time.Parse("15:04", runAt)
	if err != nil {
		return time.Hour
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
