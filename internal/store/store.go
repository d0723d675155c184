// Package store abre el backend de persistencia según configuración y expone
// los repositorios de dominio ya construidos.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
	"github.com/dropDatabas3/fitledger/internal/store/adapters/memory"
	"github.com/dropDatabas3/fitledger/internal/store/adapters/pg"
)

type Config struct {
	Driver   string
	DSN      string
	Postgres struct {
		MaxConns        int
		ConnMaxLifetime string
	}
}

// Stores agrupa los repositorios de dominio y el cierre del backend.
type Stores struct {
	Credentials repository.CredentialRepository
	Ledger      repository.LedgerRepository
	Snapshots   repository.SnapshotRepository
	Webhooks    repository.WebhookEventRepository
	Ping        func(ctx context.Context) error
	Close       func() error
}

// Open construye los repositorios para el driver configurado.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "pg", "postgresql":
		db, err := pg.New(ctx, cfg.DSN, pg.Options{
			MaxConns:        cfg.Postgres.MaxConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		return &Stores{
			Credentials: db.Credentials(),
			Ledger:      db.Ledger(),
			Snapshots:   db.Snapshots(),
			Webhooks:    db.Webhooks(),
			Ping:        db.Ping,
			Close:       db.Close,
		}, nil
	case "memory", "":
		m := memory.New()
		return &Stores{
			Credentials: m.Credentials(),
			Ledger:      m.Ledger(),
			Snapshots:   m.Snapshots(),
			Webhooks:    m.Webhooks(),
			Ping:        func(context.Context) error { return nil },
			Close:       func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("store: unsupported driver: %s", cfg.Driver)
	}
}
