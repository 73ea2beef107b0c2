package strikes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/syncutil"
)

// WalletStatusUpdater is the wallet registry operation used for suspension.
type WalletStatusUpdater interface {
	UpdateStatus(ctx context.Context, address string, change ledger.StatusChange) (*ledger.Wallet, ledger.AccountStatus, error)
}

// MemoryStore is an in-memory implementation of Store for demo/test use.
// Increments are serialized per user; the suspension goes through the
// wallet registry under the same user lock.
type MemoryStore struct {
	locks   *syncutil.KeyMutex
	wallets WalletStatusUpdater

	mu       sync.RWMutex
	counts   map[string]int
	warnings map[string][]*Warning // user → oldest first
}

// NewMemoryStore creates an in-memory strike store.
func NewMemoryStore(wallets WalletStatusUpdater) *MemoryStore {
	return &MemoryStore{
		locks:    syncutil.NewKeyMutex(),
		wallets:  wallets,
		counts:   make(map[string]int),
		warnings: make(map[string][]*Warning),
	}
}

func (s *MemoryStore) RecordWarning(ctx context.Context, w *Warning, threshold int, reason string) (*Outcome, error) {
	unlock, err := s.locks.Lock(ctx, w.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.RLock()
	prev := s.counts[w.UserID]
	s.mu.RUnlock()
	next := prev + 1

	suspended := false
	if crossed(prev, next, threshold) {
		_, _, err := s.wallets.UpdateStatus(ctx, w.WalletAddress, ledger.StatusChange{
			Status: ledger.StatusSuspended,
			Actor:  ledger.FlaggedBySystem,
			Reason: reason,
			From:   ledger.StatusActive,
		})
		switch {
		case err == nil:
			suspended = true
		case errors.Is(err, ledger.ErrStatusUnchanged), errors.Is(err, ledger.ErrWalletNotFound):
		default:
			return nil, fmt.Errorf("suspend %s: %w", w.WalletAddress, err)
		}
	}

	rec := *w
	rec.WarningNumber = next
	s.mu.Lock()
	s.counts[w.UserID] = next
	s.warnings[w.UserID] = append(s.warnings[w.UserID], &rec)
	s.mu.Unlock()

	out := rec
	return &Outcome{Warning: &out, WarningNumber: next, Suspended: suspended}, nil
}

func (s *MemoryStore) Count(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[userID], nil
}

func (s *MemoryStore) List(ctx context.Context, userID string, limit int) ([]*Warning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.warnings[userID]
	result := make([]*Warning, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		w := *all[i]
		result = append(result, &w)
	}
	return result, nil
}

func (s *MemoryStore) SetLastAction(ctx context.Context, userID string, action Action) (*Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.warnings[userID]
	if len(all) == 0 {
		return nil, ErrNoWarnings
	}
	last := all[len(all)-1]
	last.UserAction = action
	w := *last
	return &w, nil
}

func (s *MemoryStore) Reset(ctx context.Context, userID string) error {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[userID] = 0
	return nil
}

var _ Store = (*MemoryStore)(nil)
