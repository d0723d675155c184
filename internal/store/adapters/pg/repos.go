package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
)

const uniqueViolation = "23505"

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrConflict
	}
	return err
}

// ─── CredentialRepository ───

type credentialRepo struct{ pool *pgxpool.Pool }

func (r *credentialRepo) Get(ctx context.Context, userID, prov string) (*repository.ProviderCredential, error) {
	const query = `
		SELECT user_id, provider, access_token, access_token_secret, refresh_token,
		       expiry, created_at, updated_at
		FROM provider_credential WHERE user_id = $1 AND provider = $2
	`
	var c repository.ProviderCredential
	err := r.pool.QueryRow(ctx, query, userID, prov).Scan(
		&c.UserID, &c.Provider, &c.AccessToken, &c.AccessTokenSecret,
		&c.RefreshToken, &c.Expiry, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *credentialRepo) Upsert(ctx context.Context, c repository.ProviderCredential) error {
	const query = `
		INSERT INTO provider_credential
			(user_id, provider, access_token, access_token_secret, refresh_token, expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = $3, access_token_secret = $4, refresh_token = $5,
			expiry = $6, updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		c.UserID, c.Provider, c.AccessToken, c.AccessTokenSecret, c.RefreshToken, c.Expiry)
	return mapErr(err)
}

func (r *credentialRepo) ListByProvider(ctx context.Context, prov string) ([]repository.ProviderCredential, error) {
	const query = `
		SELECT user_id, provider, access_token, access_token_secret, refresh_token,
		       expiry, created_at, updated_at
		FROM provider_credential WHERE provider = $1 ORDER BY user_id
	`
	rows, err := r.pool.Query(ctx, query, prov)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.ProviderCredential
	for rows.Next() {
		var c repository.ProviderCredential
		if err := rows.Scan(&c.UserID, &c.Provider, &c.AccessToken, &c.AccessTokenSecret,
			&c.RefreshToken, &c.Expiry, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *credentialRepo) Delete(ctx context.Context, userID, prov string) error {
	const query = `DELETE FROM provider_credential WHERE user_id = $1 AND provider = $2`
	tag, err := r.pool.Exec(ctx, query, userID, prov)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── LedgerRepository ───

type ledgerRepo struct{ pool *pgxpool.Pool }

// Upsert es atómico por clave: un único INSERT ... ON CONFLICT DO UPDATE,
// sin read-modify-write, así dos syncs concurrentes del mismo día no se pisan.
func (r *ledgerRepo) Upsert(ctx context.Context, rec repository.PointRecord) error {
	const query = `
		INSERT INTO point_record (user_id, event_id, data_source_id, date, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id, event_id, data_source_id, date)
		DO UPDATE SET amount = $5, updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		rec.UserID, rec.EventID, rec.DataSourceID, day(rec.Date), rec.Amount)
	return mapErr(err)
}

func (r *ledgerRepo) Get(ctx context.Context, key repository.Key) (*repository.PointRecord, error) {
	const query = `
		SELECT user_id, event_id, data_source_id, date, amount, created_at, updated_at
		FROM point_record
		WHERE user_id = $1 AND event_id = $2 AND data_source_id = $3 AND date = $4
	`
	var rec repository.PointRecord
	err := r.pool.QueryRow(ctx, query, key.UserID, key.EventID, key.DataSourceID, day(key.Date)).Scan(
		&rec.UserID, &rec.EventID, &rec.DataSourceID, &rec.Date, &rec.Amount,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

func (r *ledgerRepo) SumBySourceAndDate(ctx context.Context, dataSourceID string, date time.Time) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0) FROM point_record
		WHERE data_source_id = $1 AND date = $2
	`
	var sum int64
	err := r.pool.QueryRow(ctx, query, dataSourceID, day(date)).Scan(&sum)
	return sum, mapErr(err)
}

func (r *ledgerRepo) ListByUserEvent(ctx context.Context, userID, eventID string) ([]repository.PointRecord, error) {
	const query = `
		SELECT user_id, event_id, data_source_id, date, amount, created_at, updated_at
		FROM point_record
		WHERE user_id = $1 AND event_id = $2
		ORDER BY date DESC, data_source_id
	`
	rows, err := r.pool.Query(ctx, query, userID, eventID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.PointRecord
	for rows.Next() {
		var rec repository.PointRecord
		if err := rows.Scan(&rec.UserID, &rec.EventID, &rec.DataSourceID, &rec.Date,
			&rec.Amount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *ledgerRepo) Delete(ctx context.Context, key repository.Key) error {
	const query = `
		DELETE FROM point_record
		WHERE user_id = $1 AND event_id = $2 AND data_source_id = $3 AND date = $4
	`
	tag, err := r.pool.Exec(ctx, query, key.UserID, key.EventID, key.DataSourceID, day(key.Date))
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── SnapshotRepository ───

type snapshotRepo struct{ pool *pgxpool.Pool }

func (r *snapshotRepo) Upsert(ctx context.Context, snap repository.DailyTrackerSnapshot) error {
	const query = `
		INSERT INTO daily_tracker_snapshot (data_source_id, date, total_points, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (data_source_id, date)
		DO UPDATE SET total_points = $3, updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, snap.DataSourceID, day(snap.Date), snap.TotalPoints)
	return mapErr(err)
}

func (r *snapshotRepo) Get(ctx context.Context, dataSourceID string, date time.Time) (*repository.DailyTrackerSnapshot, error) {
	const query = `
		SELECT data_source_id, date, total_points, created_at, updated_at
		FROM daily_tracker_snapshot WHERE data_source_id = $1 AND date = $2
	`
	var s repository.DailyTrackerSnapshot
	err := r.pool.QueryRow(ctx, query, dataSourceID, day(date)).Scan(
		&s.DataSourceID, &s.Date, &s.TotalPoints, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *snapshotRepo) ListByDate(ctx context.Context, date time.Time) ([]repository.DailyTrackerSnapshot, error) {
	const query = `
		SELECT data_source_id, date, total_points, created_at, updated_at
		FROM daily_tracker_snapshot WHERE date = $1 ORDER BY data_source_id
	`
	rows, err := r.pool.Query(ctx, query, day(date))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.DailyTrackerSnapshot
	for rows.Next() {
		var s repository.DailyTrackerSnapshot
		if err := rows.Scan(&s.DataSourceID, &s.Date, &s.TotalPoints, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ─── WebhookEventRepository ───

type webhookRepo struct{ pool *pgxpool.Pool }

func (r *webhookRepo) Create(ctx context.Context, ev repository.WebhookEvent) error {
	const query = `
		INSERT INTO webhook_event
			(id, order_number, customer_email, customer_name, user_id, event_id, payload,
			 ack_status, ledger_status, crm_sync_status, received_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		ev.ID, ev.OrderNumber, ev.CustomerEmail, ev.CustomerName, ev.UserID, ev.EventID, ev.Payload,
		string(ev.AckStatus), string(ev.LedgerStatus), string(ev.CRMSyncStatus))
	return mapErr(err)
}

const webhookColumns = `
	id, order_number, customer_email, customer_name, user_id, event_id, payload,
	ack_status, ledger_status, crm_sync_status,
	COALESCE(ack_error, ''), COALESCE(ledger_error, ''), COALESCE(crm_error, ''),
	received_at, updated_at
`

func scanWebhook(row pgx.Row) (*repository.WebhookEvent, error) {
	var ev repository.WebhookEvent
	var ack, led, crm, ackErr, ledErr, crmErr string
	err := row.Scan(&ev.ID, &ev.OrderNumber, &ev.CustomerEmail, &ev.CustomerName,
		&ev.UserID, &ev.EventID, &ev.Payload, &ack, &led, &crm, &ackErr, &ledErr, &crmErr,
		&ev.ReceivedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ev.AckStatus = repository.StageStatus(ack)
	ev.LedgerStatus = repository.StageStatus(led)
	ev.CRMSyncStatus = repository.StageStatus(crm)
	ev.LastError = map[repository.Stage]string{}
	if ackErr != "" {
		ev.LastError[repository.StageAck] = ackErr
	}
	if ledErr != "" {
		ev.LastError[repository.StageLedger] = ledErr
	}
	if crmErr != "" {
		ev.LastError[repository.StageCRM] = crmErr
	}
	return &ev, nil
}

func (r *webhookRepo) Get(ctx context.Context, id string) (*repository.WebhookEvent, error) {
	ev, err := scanWebhook(r.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhook_event WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return ev, nil
}

func (r *webhookRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*repository.WebhookEvent, error) {
	ev, err := scanWebhook(r.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhook_event WHERE order_number = $1`, orderNumber))
	if err != nil {
		return nil, mapErr(err)
	}
	return ev, nil
}

func (r *webhookRepo) ListIncomplete(ctx context.Context, limit int) ([]repository.WebhookEvent, error) {
	query := `
		SELECT ` + webhookColumns + ` FROM webhook_event
		WHERE ack_status <> 'done' OR ledger_status <> 'done' OR crm_sync_status <> 'done'
		ORDER BY received_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.WebhookEvent
	for rows.Next() {
		ev, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// SetStage actualiza sólo la columna de la etapa pedida. Las otras dos nunca
// aparecen en el UPDATE, así un fallo en una etapa no puede tocar las demás.
func (r *webhookRepo) SetStage(ctx context.Context, id string, stage repository.Stage, status repository.StageStatus, lastErr string) error {
	var query string
	switch stage {
	case repository.StageAck:
		query = `UPDATE webhook_event SET ack_status = $2, ack_error = NULLIF($3, ''), updated_at = NOW() WHERE id = $1`
	case repository.StageLedger:
		query = `UPDATE webhook_event SET ledger_status = $2, ledger_error = NULLIF($3, ''), updated_at = NOW() WHERE id = $1`
	case repository.StageCRM:
		query = `UPDATE webhook_event SET crm_sync_status = $2, crm_error = NULLIF($3, ''), updated_at = NOW() WHERE id = $1`
	default:
		return repository.ErrInvalidInput
	}
	tag, err := r.pool.Exec(ctx, query, id, string(status), lastErr)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// day normaliza una fecha de negocio a UTC midnight.
func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
