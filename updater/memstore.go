package updater

import (
	"context"
	"sync"
	"time"
)

// MemStore is a map-backed CrimeStore for offline runs and tests. It applies
// the same append-only, unique-incident semantics as the Postgres store.
type MemStore struct {
	mu   sync.Mutex
	byID map[string]Record

	// RejectFn, when set, makes InsertNew skip matching records. Used in
	// tests to model per-record write failures.
	RejectFn func(Record) bool
}

func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]Record)}
}

func (m *MemStore) MaxOccurred(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max *time.Time
	for _, r := range m.byID {
		if max == nil || r.OccurredDate.After(*max) {
			t := r.OccurredDate
			max = &t
		}
	}
	return max, nil
}

func (m *MemStore) FilterNew(ctx context.Context, candidates []Record) ([]Record, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := make([]Record, 0, len(candidates))
	for _, r := range candidates {
		if _, ok := m.byID[r.IncidentID]; ok {
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh, nil
}

func (m *MemStore) InsertNew(ctx context.Context, records []Record) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted, skipped := 0, 0
	for _, r := range records {
		if m.RejectFn != nil && m.RejectFn(r) {
			skipped++
			continue
		}
		if _, ok := m.byID[r.IncidentID]; ok {
			// Uniqueness race semantics: an existing row is a benign no-op.
			continue
		}
		m.byID[r.IncidentID] = r
		inserted++
	}
	return inserted, skipped, nil
}

func (m *MemStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byID)), nil
}

// Has reports whether an incident id is stored. Test helper.
func (m *MemStore) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}
