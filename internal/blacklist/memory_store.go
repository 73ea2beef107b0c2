package blacklist

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory blacklist.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (m *MemoryStore) Get(ctx context.Context, address string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[address]
	if !ok {
		return nil, ErrNotFound
	}
	return e.clone(), nil
}

func (m *MemoryStore) Upsert(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[e.Address] = e.clone()
	return nil
}

func (m *MemoryStore) Retire(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[address]
	if !ok {
		return ErrNotFound
	}
	e.IsActive = false
	return nil
}

func (m *MemoryStore) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*Entry
	for _, e := range m.entries {
		if activeOnly && !e.IsActive {
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ReportedAt.Equal(all[j].ReportedAt) {
			return all[i].ReportedAt.After(all[j].ReportedAt)
		}
		return all[i].Address < all[j].Address
	})

	result := []*Entry{}
	for i := offset; i < len(all) && len(result) < limit; i++ {
		result = append(result, all[i].clone())
	}
	return result, nil
}
