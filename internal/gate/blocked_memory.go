package gate

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// MemoryBlockedStore is an in-memory BlockedStore for demo/test use.
type MemoryBlockedStore struct {
	mu   sync.RWMutex
	rows []*BlockedTransfer
}

// NewMemoryBlockedStore creates an in-memory blocked-transfer log.
func NewMemoryBlockedStore() *MemoryBlockedStore {
	return &MemoryBlockedStore{}
}

func (s *MemoryBlockedStore) Record(ctx context.Context, b *BlockedTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, b.clone())
	return nil
}

func (s *MemoryBlockedStore) List(ctx context.Context, f BlockedFilter) ([]*BlockedTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*BlockedTransfer{}
	skipped := 0
	for i := len(s.rows) - 1; i >= 0; i-- {
		b := s.rows[i]
		if (f.From != "" && b.From != f.From) || (f.To != "" && b.To != f.To) || (f.Reason != "" && b.BlockReason != f.Reason) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
		result = append(result, b.clone())
	}
	return result, nil
}

func (s *MemoryBlockedStore) Stats(ctx context.Context, since time.Time) (*BlockedStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &BlockedStats{TotalValue: new(big.Int), ByReason: map[BlockReason]int64{}}
	for _, b := range s.rows {
		st.TotalBlocked++
		if !b.BlockedAt.Before(since) {
			st.BlockedToday++
		}
		st.TotalValue.Add(st.TotalValue, b.Value)
		st.ByReason[b.BlockReason]++
	}
	return st, nil
}
