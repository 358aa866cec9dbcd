package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process ledger with the same semantics as Store.
// It backs local runs without an idempotency table.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]IdempotencyRecord
	nowFunc func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]IdempotencyRecord{}, nowFunc: time.Now}
}

func (m *MemoryStore) CreateIfNotExists(_ context.Context, key, externalReference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	now := m.nowFunc()
	m.records[key] = IdempotencyRecord{
		IdempotencyKey:    key,
		Status:            StatusInProgress,
		ExternalReference: externalReference,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(DefaultTTL).Unix(),
	}
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) MarkDone(_ context.Context, key string, c Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || (rec.OrderID != "" && rec.OrderID != c.OrderID) {
		return fmt.Errorf("mark done %s: %w", key, ErrConditionFailed)
	}
	rec.Status = StatusDone
	rec.OrderID = c.OrderID
	rec.OrderPublicID = c.OrderPublicID
	rec.ResponseBody = c.ResponseBody
	rec.ResponseStatus = c.ResponseStatus
	rec.UpdatedAt = m.nowFunc()
	m.records[key] = rec
	return nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Status == StatusDone {
		return fmt.Errorf("mark failed %s: %w", key, ErrConditionFailed)
	}
	rec.Status = StatusFailed
	rec.Note = note
	rec.UpdatedAt = m.nowFunc()
	m.records[key] = rec
	return nil
}
