package session

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps sessions and preferences in process memory. Used in
// tests and single-instance deployments without Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	recs  map[string]Record
	prefs map[string]Preference
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recs:  make(map[string]Record),
		prefs: make(map[string]Preference),
	}
}

func (m *MemoryStore) Save(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.recs[cp.ID] = cp
	return nil
}

func (m *MemoryStore) Find(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

func (m *MemoryStore) SavePreference(ctx context.Context, userID string, pref Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = pref
	return nil
}

func (m *MemoryStore) FindPreference(ctx context.Context, userID string) (Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pref, ok := m.prefs[userID]
	if !ok {
		return Preference{}, ErrNotFound
	}
	return pref, nil
}
