package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr         string `yaml:"addr"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		// AdminAPIKey protege los endpoints de operación (aggregate, award, sweep).
		AdminAPIKey string `yaml:"admin_api_key"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver"` // postgres | memory
		DSN    string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	// ───────── Activity Providers ─────────
	Providers struct {
		// LookbackDays limita cuántos días hacia atrás se piden actividades.
		LookbackDays int `yaml:"lookback_days"`
		// ConnectStateTTL es el TTL del state token del flujo de conexión OAuth.
		ConnectStateTTL time.Duration `yaml:"connect_state_ttl"`
		// StateSecret firma los state tokens (HS256).
		StateSecret string `yaml:"state_secret"`

		Strava struct {
			Enabled       bool   `yaml:"enabled"`
			ClientID      string `yaml:"client_id"`
			ClientSecret  string `yaml:"client_secret"`
			RedirectURL   string `yaml:"redirect_url"`
			VerifyToken   string `yaml:"verify_token"` // webhook subscription challenge
			PointsPerKm   int64  `yaml:"points_per_km"`
		} `yaml:"strava"`

		Fitbit struct {
			Enabled        bool   `yaml:"enabled"`
			ClientID       string `yaml:"client_id"`
			ClientSecret   string `yaml:"client_secret"`
			RedirectURL    string `yaml:"redirect_url"`
			PointsPerKStep int64  `yaml:"points_per_kstep"` // points per 1000 steps
		} `yaml:"fitbit"`

		Garmin struct {
			Enabled        bool   `yaml:"enabled"`
			ConsumerKey    string `yaml:"consumer_key"`
			ConsumerSecret string `yaml:"consumer_secret"`
			RedirectURL    string `yaml:"redirect_url"`
			PointsPerMin   int64  `yaml:"points_per_min"`
		} `yaml:"garmin"`
	} `yaml:"providers"`

	Tracker struct {
		// RunAt hora local "HH:MM" del run diario. El scheduler externo puede
		// ignorarlo y disparar por HTTP.
		RunAt string `yaml:"run_at"`
	} `yaml:"tracker"`

	Pipeline struct {
		// SweepInterval intervalo del barrido de eventos pendientes.
		SweepInterval string `yaml:"sweep_interval"`
		// BatchSize máximo de eventos por barrido.
		BatchSize int `yaml:"batch_size"`
		// WebhookSecret valida la firma del webhook de commerce.
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"pipeline"`

	CRM struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
	} `yaml:"crm"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Alerts struct {
		// OperatorEmail recibe reportes de partial failure del aggregator.
		// Vacío = alertas deshabilitadas.
		OperatorEmail string `yaml:"operator_email"`
	} `yaml:"alerts"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Storage.Postgres.ConnMaxLifetime == "" {
		c.Storage.Postgres.ConnMaxLifetime = "30m"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Providers.LookbackDays == 0 {
		c.Providers.LookbackDays = 7
	}
	if c.Providers.ConnectStateTTL == 0 {
		c.Providers.ConnectStateTTL = 10 * time.Minute
	}
	if c.Providers.Strava.PointsPerKm == 0 {
		c.Providers.Strava.PointsPerKm = 10
	}
	if c.Providers.Fitbit.PointsPerKStep == 0 {
		c.Providers.Fitbit.PointsPerKStep = 1
	}
	if c.Providers.Garmin.PointsPerMin == 0 {
		c.Providers.Garmin.PointsPerMin = 1
	}
	if c.Pipeline.SweepInterval == "" {
		c.Pipeline.SweepInterval = "1m"
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = 100
	}
	if c.CRM.Timeout == "" {
		c.CRM.Timeout = "10s"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.Tracker.RunAt == "" {
		c.Tracker.RunAt = "02:00"
	}
}

func (c *Config) validate() error {
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn required for postgres driver")
	}
	if c.Cache.Kind == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("config: cache.redis.addr required for redis cache")
	}
	return nil
}

// ParseDuration parsea una duración tipo "30s"/"5m". Retorna def si v está vacío
// o es inválido. Centraliza el patrón "duración como string en YAML".
func ParseDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
