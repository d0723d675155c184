// Package pg implementa los repositorios de dominio sobre PostgreSQL (pgx).
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
)

type Options struct {
	MaxConns        int
	ConnMaxLifetime string
}

// DB envuelve el pool y fabrica los repositorios.
type DB struct {
	pool *pgxpool.Pool
}

// New abre el pool y verifica conectividad.
func New(ctx context.Context, dsn string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(opts.ConnMaxLifetime); err == nil {
			cfg.MaxConnLifetime = d
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// Ping verifica la conexión al pool.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *DB) Credentials() repository.CredentialRepository  { return &credentialRepo{pool: d.pool} }
func (d *DB) Ledger() repository.LedgerRepository           { return &ledgerRepo{pool: d.pool} }
func (d *DB) Snapshots() repository.SnapshotRepository      { return &snapshotRepo{pool: d.pool} }
func (d *DB) Webhooks() repository.WebhookEventRepository   { return &webhookRepo{pool: d.pool} }
