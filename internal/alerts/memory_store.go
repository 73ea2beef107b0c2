package alerts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

// NewMemoryStore creates an in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]*Alert)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a.clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*Alert, error) {
	s.mu.RLock()
	var matched []*Alert
	for _, a := range s.alerts {
		if f.matches(a) {
			matched = append(matched, a.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].DetectedAt.Equal(matched[j].DetectedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].DetectedAt.After(matched[j].DetectedAt)
	})
	if f.Offset >= len(matched) {
		return []*Alert{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Acknowledge(ctx context.Context, id, by string, at time.Time) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Acknowledged {
		return nil, ErrAlreadyAcknowledged
	}
	a.Acknowledged = true
	a.AcknowledgedAt = &at
	a.AcknowledgedBy = by
	return a.clone(), nil
}

func (s *MemoryStore) Counts(ctx context.Context, since time.Time) (*Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &Counts{ByType: map[Type]int64{}, BySeverity: map[Severity]int64{}}
	for _, a := range s.alerts {
		c.Total++
		if !a.Acknowledged {
			c.Unacknowledged++
		}
		if !a.DetectedAt.Before(since) {
			c.Recent++
		}
		c.ByType[a.AlertType]++
		c.BySeverity[a.Severity]++
	}
	return c, nil
}

func (f Filter) matches(a *Alert) bool {
	if f.Type != "" && a.AlertType != f.Type {
		return false
	}
	if f.WalletAddress != "" && a.WalletAddress != f.WalletAddress {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.UnacknowledgedOnly && a.Acknowledged {
		return false
	}
	if !f.Since.IsZero() && a.DetectedAt.Before(f.Since) {
		return false
	}
	return true
}
