// Package memory implementa los repositorios de dominio en memoria.
// Para desarrollo y tests; mismas semánticas de upsert que el adapter pg.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/fitledger/internal/domain/repository"
)

// Store agrupa los repos en memoria compartiendo un solo lock.
type Store struct {
	mu          sync.RWMutex
	credentials map[credKey]repository.ProviderCredential
	ledger      map[ledgerKey]repository.PointRecord
	snapshots   map[snapKey]repository.DailyTrackerSnapshot
	webhooks    map[string]repository.WebhookEvent // id → event
	byOrder     map[string]string                  // order number → id
}

type credKey struct{ userID, provider string }
type ledgerKey struct {
	userID, eventID, dataSourceID string
	date                          time.Time
}
type snapKey struct {
	dataSourceID string
	date         time.Time
}

func New() *Store {
	return &Store{
		credentials: make(map[credKey]repository.ProviderCredential),
		ledger:      make(map[ledgerKey]repository.PointRecord),
		snapshots:   make(map[snapKey]repository.DailyTrackerSnapshot),
		webhooks:    make(map[string]repository.WebhookEvent),
		byOrder:     make(map[string]string),
	}
}

func (s *Store) Credentials() repository.CredentialRepository { return (*credentialRepo)(s) }
func (s *Store) Ledger() repository.LedgerRepository          { return (*ledgerRepo)(s) }
func (s *Store) Snapshots() repository.SnapshotRepository     { return (*snapshotRepo)(s) }
func (s *Store) Webhooks() repository.WebhookEventRepository  { return (*webhookRepo)(s) }

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ─── CredentialRepository ───

type credentialRepo Store

func (r *credentialRepo) Get(_ context.Context, userID, provider string) (*repository.ProviderCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.credentials[credKey{userID, provider}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *credentialRepo) Upsert(_ context.Context, c repository.ProviderCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	key := credKey{c.UserID, c.Provider}
	if prev, ok := r.credentials[key]; ok {
		c.CreatedAt = prev.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.credentials[key] = c
	return nil
}

func (r *credentialRepo) ListByProvider(_ context.Context, provider string) ([]repository.ProviderCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []repository.ProviderCredential
	for k, c := range r.credentials {
		if k.provider == provider {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *credentialRepo) Delete(_ context.Context, userID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := credKey{userID, provider}
	if _, ok := r.credentials[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.credentials, key)
	return nil
}

// ─── LedgerRepository ───

type ledgerRepo Store

func keyOf(k repository.Key) ledgerKey {
	return ledgerKey{k.UserID, k.EventID, k.DataSourceID, day(k.Date)}
}

func (r *ledgerRepo) Upsert(_ context.Context, rec repository.PointRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	rec.Date = day(rec.Date)
	key := ledgerKey{rec.UserID, rec.EventID, rec.DataSourceID, rec.Date}
	if prev, ok := r.ledger[key]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.ledger[key] = rec
	return nil
}

func (r *ledgerRepo) Get(_ context.Context, key repository.Key) (*repository.PointRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.ledger[keyOf(key)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r *ledgerRepo) SumBySourceAndDate(_ context.Context, dataSourceID string, date time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := day(date)
	var sum int64
	for k, rec := range r.ledger {
		if k.dataSourceID == dataSourceID && k.date.Equal(d) {
			sum += rec.Amount
		}
	}
	return sum, nil
}

func (r *ledgerRepo) ListByUserEvent(_ context.Context, userID, eventID string) ([]repository.PointRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []repository.PointRecord
	for k, rec := range r.ledger {
		if k.userID == userID && k.eventID == eventID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].DataSourceID < out[j].DataSourceID
	})
	return out, nil
}

func (r *ledgerRepo) Delete(_ context.Context, key repository.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyOf(key)
	if _, ok := r.ledger[k]; !ok {
		return repository.ErrNotFound
	}
	delete(r.ledger, k)
	return nil
}

// ─── SnapshotRepository ───

type snapshotRepo Store

func (r *snapshotRepo) Upsert(_ context.Context, snap repository.DailyTrackerSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	snap.Date = day(snap.Date)
	key := snapKey{snap.DataSourceID, snap.Date}
	if prev, ok := r.snapshots[key]; ok {
		snap.CreatedAt = prev.CreatedAt
	} else {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now
	r.snapshots[key] = snap
	return nil
}

func (r *snapshotRepo) Get(_ context.Context, dataSourceID string, date time.Time) (*repository.DailyTrackerSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[snapKey{dataSourceID, day(date)}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *snapshotRepo) ListByDate(_ context.Context, date time.Time) ([]repository.DailyTrackerSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := day(date)
	var out []repository.DailyTrackerSnapshot
	for k, s := range r.snapshots {
		if k.date.Equal(d) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataSourceID < out[j].DataSourceID })
	return out, nil
}

// ─── WebhookEventRepository ───

type webhookRepo Store

func (r *webhookRepo) Create(_ context.Context, ev repository.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byOrder[ev.OrderNumber]; dup {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = now
	}
	ev.UpdatedAt = now
	if ev.LastError == nil {
		ev.LastError = map[repository.Stage]string{}
	}
	r.webhooks[ev.ID] = ev
	r.byOrder[ev.OrderNumber] = ev.ID
	return nil
}

func (r *webhookRepo) Get(_ context.Context, id string) (*repository.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.webhooks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := cloneEvent(ev)
	return &cp, nil
}

func (r *webhookRepo) GetByOrderNumber(_ context.Context, orderNumber string) (*repository.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrder[orderNumber]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := cloneEvent(r.webhooks[id])
	return &cp, nil
}

func (r *webhookRepo) ListIncomplete(_ context.Context, limit int) ([]repository.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []repository.WebhookEvent
	for _, ev := range r.webhooks {
		if !ev.Complete() {
			out = append(out, cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *webhookRepo) SetStage(_ context.Context, id string, stage repository.Stage, status repository.StageStatus, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.webhooks[id]
	if !ok {
		return repository.ErrNotFound
	}
	ev = cloneEvent(ev)
	switch stage {
	case repository.StageAck:
		ev.AckStatus = status
	case repository.StageLedger:
		ev.LedgerStatus = status
	case repository.StageCRM:
		ev.CRMSyncStatus = status
	default:
		return repository.ErrInvalidInput
	}
	if lastErr == "" {
		delete(ev.LastError, stage)
	} else {
		ev.LastError[stage] = lastErr
	}
	ev.UpdatedAt = time.Now().UTC()
	r.webhooks[id] = ev
	return nil
}

func cloneEvent(ev repository.WebhookEvent) repository.WebhookEvent {
	cp := ev
	cp.Payload = append([]byte(nil), ev.Payload...)
	cp.LastError = make(map[repository.Stage]string, len(ev.LastError))
	for k, v := range ev.LastError {
		cp.LastError[k] = v
	}
	return cp
}
