package repository

import (
	"context"
	"time"
)

// DailyTrackerSnapshot es el agregado diario inmutable derivado del ledger:
// la suma de todos los PointRecords de un data source en un día, al momento
// de la agregación. TotalPoints = 0 es un valor explícito y distinto de
// "todavía no agregado" (fila ausente).
type DailyTrackerSnapshot struct {
	DataSourceID string
	Date         time.Time // UTC midnight
	TotalPoints  int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SnapshotRepository define operaciones sobre snapshots diarios.
type SnapshotRepository interface {
	// Upsert escribe el snapshot para (dataSourceID, date). Re-correr el
	// aggregator para el mismo día reemplaza la fila, nunca agrega una segunda.
	Upsert(ctx context.Context, snap DailyTrackerSnapshot) error

	// Get busca el snapshot de un data source en un día.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, dataSourceID string, date time.Time) (*DailyTrackerSnapshot, error)

	// ListByDate lista los snapshots de un día, ordenados por data source.
	ListByDate(ctx context.Context, date time.Time) ([]DailyTrackerSnapshot, error)
}
