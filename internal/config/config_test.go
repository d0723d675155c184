package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "app:\n  app_env: dev\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Providers.LookbackDays != 7 {
		t.Fatalf("lookback = %d", cfg.Providers.LookbackDays)
	}
	if cfg.Providers.ConnectStateTTL != 10*time.Minute {
		t.Fatalf("state ttl = %s", cfg.Providers.ConnectStateTTL)
	}
	if cfg.Pipeline.BatchSize != 100 {
		t.Fatalf("batch = %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Tracker.RunAt != "02:00" {
		t.Fatalf("run_at = %q", cfg.Tracker.RunAt)
	}
}

func TestLoad_ValidatesDriverRequirements(t *testing.T) {
	t.Parallel()
	if _, err := Load(writeConfig(t, "storage:\n  driver: postgres\n")); err == nil {
		t.Fatal("postgres without dsn must fail")
	}
	if _, err := Load(writeConfig(t, "cache:\n  kind: redis\n")); err == nil {
		t.Fatal("redis cache without addr must fail")
	}
}

func TestLoad_ReadsProviderBlock(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, `
providers:
  lookback_days: 3
  strava:
    enabled: true
    client_id: id-1
    points_per_km: 12
pipeline:
  sweep_interval: 30s
  webhook_secret: s3cret
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Providers.Strava.Enabled || cfg.Providers.Strava.ClientID != "id-1" {
		t.Fatalf("strava block = %+v", cfg.Providers.Strava)
	}
	if cfg.Providers.Strava.PointsPerKm != 12 {
		t.Fatalf("points_per_km = %d", cfg.Providers.Strava.PointsPerKm)
	}
	if cfg.Pipeline.WebhookSecret != "s3cret" {
		t.Fatalf("webhook secret = %q", cfg.Pipeline.WebhookSecret)
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	if got := ParseDuration("45s", time.Minute); got != 45*time.Second {
		t.Fatalf("got %s", got)
	}
	if got := ParseDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: got %s", got)
	}
	if got := ParseDuration("junk", time.Minute); got != time.Minute {
		t.Fatalf("invalid: got %s", got)
	}
}
