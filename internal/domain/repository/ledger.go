package repository

import (
	"context"
	"time"
)

// PointRecord es una fila del ledger de puntos: el total autoritativo de un
// usuario para un (evento, data source, día). A lo sumo una fila por clave.
type PointRecord struct {
	UserID       string
	EventID      string
	DataSourceID string
	Date         time.Time // normalizado a UTC midnight
	Amount       int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key identifica unívocamente una fila del ledger.
type Key struct {
	UserID       string
	EventID      string
	DataSourceID string
	Date         time.Time
}

// LedgerRepository define operaciones sobre el ledger de puntos.
//
// Upsert es el ÚNICO camino de escritura: re-ingestar el mismo día reemplaza
// el amount existente, nunca duplica (last-write-wins por clave).
type LedgerRepository interface {
	// Upsert inserta o reemplaza el amount para la clave del record.
	// Debe ser atómico por clave (write condicional único).
	Upsert(ctx context.Context, rec PointRecord) error

	// Get busca una fila por clave. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key Key) (*PointRecord, error)

	// SumBySourceAndDate suma los amounts de un data source en un día.
	// Retorna 0 (sin error) si no hay filas.
	SumBySourceAndDate(ctx context.Context, dataSourceID string, date time.Time) (int64, error)

	// ListByUserEvent lista las filas de un usuario en un evento, ordenadas
	// por fecha descendente.
	ListByUserEvent(ctx context.Context, userID, eventID string) ([]PointRecord, error)

	// Delete elimina una fila (reversa administrativa explícita).
	// Retorna ErrNotFound si no existe.
	Delete(ctx context.Context, key Key) error
}
