package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/riskgate/internal/syncutil"
)

// MemoryStore is an in-memory Store for development and tests.
//
// Commits take per-address locks on the sender and receiver, so commits
// touching disjoint wallets run in parallel. The entry and both aggregate
// updates become visible in one short critical section under mu.
type MemoryStore struct {
	locks *syncutil.KeyMutex

	mu        sync.RWMutex
	transfers []*Transfer
	byHash    map[string]int
	byAddr    map[string][]int
	wallets   map[string]*Wallet

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:   syncutil.NewKeyMutex(),
		byHash:  make(map[string]int),
		byAddr:  make(map[string][]int),
		wallets: make(map[string]*Wallet),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Commit(ctx context.Context, t *Transfer, opts CommitOptions) (*Transfer, bool, error) {
	keys := make([]string, 0, 2)
	if t.From != "" {
		keys = append(keys, t.From)
	}
	if t.To != "" {
		keys = append(keys, t.To)
	}
	unlock, err := m.locks.LockAll(ctx, keys...)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	m.mu.RLock()
	if existing, dup, err := m.lookupDuplicateLocked(t); dup || err != nil {
		m.mu.RUnlock()
		return existing, dup, err
	}
	if !opts.SkipBalanceCheck && t.From != "" {
		// Holding the sender's address lock means no other commit can move
		// this balance before the append below.
		bal := m.derivedTotalsLocked(t.From).Balance()
		if bal.Cmp(t.Value) < 0 {
			m.mu.RUnlock()
			return nil, false, fmt.Errorf("%w: balance %s, need %s", ErrInsufficientBalance, bal, t.Value)
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// The same hash may have raced in from a commit holding other locks.
	if existing, dup, err := m.lookupDuplicateLocked(t); dup || err != nil {
		return existing, dup, err
	}

	stored := t.clone()
	idx := len(m.transfers)
	m.transfers = append(m.transfers, stored)
	m.byHash[stored.Hash] = idx

	now := m.now()
	if stored.From != "" {
		m.byAddr[stored.From] = append(m.byAddr[stored.From], idx)
		w := m.walletLocked(stored.From, now)
		w.TotalTransactions++
		w.TotalValueSent.Add(w.TotalValueSent, stored.Value)
		ts := stored.Timestamp
		w.LastActivityAt = &ts
	}
	if stored.To != "" {
		m.byAddr[stored.To] = append(m.byAddr[stored.To], idx)
		w := m.walletLocked(stored.To, now)
		w.TotalTransactions++
		w.TotalValueReceived.Add(w.TotalValueReceived, stored.Value)
		ts := stored.Timestamp
		w.LastActivityAt = &ts
	}

	return stored.clone(), false, nil
}

func (m *MemoryStore) lookupDuplicateLocked(t *Transfer) (*Transfer, bool, error) {
	idx, ok := m.byHash[t.Hash]
	if !ok {
		return nil, false, nil
	}
	existing := m.transfers[idx]
	if !existing.samePayload(t) {
		return nil, false, ErrHashConflict
	}
	return existing.clone(), true, nil
}

func (m *MemoryStore) walletLocked(address string, now time.Time) *Wallet {
	w, ok := m.wallets[address]
	if !ok {
		w = newWallet(address, now)
		m.wallets[address] = w
	}
	return w
}

func (m *MemoryStore) derivedTotalsLocked(address string) *Totals {
	totals := &Totals{Address: address, Sent: new(big.Int), Received: new(big.Int)}
	for _, idx := range m.byAddr[address] {
		t := m.transfers[idx]
		if !t.Success {
			continue
		}
		if t.From == address {
			totals.Sent.Add(totals.Sent, t.Value)
			totals.SentCount++
		}
		if t.To == address {
			totals.Received.Add(totals.Received, t.Value)
			totals.ReceivedCount++
		}
	}
	return totals
}

func (m *MemoryStore) GetTransfer(ctx context.Context, hash string) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.byHash[hash]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return m.transfers[idx].clone(), nil
}

func (m *MemoryStore) History(ctx context.Context, address string, limit, offset int) ([]*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idxs := m.byAddr[address]
	result := make([]*Transfer, 0, limit)
	for i := len(idxs) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, m.transfers[idxs[i]].clone())
	}
	return result, nil
}

func (m *MemoryStore) DerivedTotals(ctx context.Context, address string) (*Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.derivedTotalsLocked(address), nil
}

func (m *MemoryStore) Snapshot(ctx context.Context, address string) (*Wallet, *Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[address]
	if !ok {
		return nil, nil, ErrWalletNotFound
	}
	return w.clone(), m.derivedTotalsLocked(address), nil
}

func (m *MemoryStore) Connections(ctx context.Context, address string, limit int) ([]*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byPeer := make(map[string]*Connection)
	for _, idx := range m.byAddr[address] {
		t := m.transfers[idx]
		peer := t.To
		outgoing := t.From == address
		if !outgoing {
			peer = t.From
		}
		if peer == "" {
			continue
		}
		c, ok := byPeer[peer]
		if !ok {
			c = &Connection{Counterparty: peer, ValueSent: new(big.Int), ValueReceived: new(big.Int)}
			byPeer[peer] = c
		}
		if outgoing {
			c.SentCount++
			c.ValueSent.Add(c.ValueSent, t.Value)
		} else {
			c.ReceivedCount++
			c.ValueReceived.Add(c.ValueReceived, t.Value)
		}
		if t.Timestamp.After(c.LastTransfer) {
			c.LastTransfer = t.Timestamp
		}
	}

	result := make([]*Connection, 0, len(byPeer))
	for _, c := range byPeer {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		ci := result[i].SentCount + result[i].ReceivedCount
		cj := result[j].SentCount + result[j].ReceivedCount
		if ci != cj {
			return ci > cj
		}
		return result[i].Counterparty < result[j].Counterparty
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) Flow(ctx context.Context, address string, since time.Time) ([]*FlowPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byDay := make(map[string]*FlowPoint)
	add := func(t *Transfer) {
		if t.Timestamp.Before(since) {
			return
		}
		day := t.Timestamp.UTC().Format(time.DateOnly)
		p, ok := byDay[day]
		if !ok {
			p = &FlowPoint{Date: day, Inflow: new(big.Int), Outflow: new(big.Int)}
			byDay[day] = p
		}
		if address == "" || t.To == address {
			p.Inflow.Add(p.Inflow, t.Value)
		}
		if address == "" || t.From == address {
			p.Outflow.Add(p.Outflow, t.Value)
		}
	}
	if address == "" {
		for _, t := range m.transfers {
			add(t)
		}
	} else {
		for _, idx := range m.byAddr[address] {
			add(m.transfers[idx])
		}
	}

	result := make([]*FlowPoint, 0, len(byDay))
	for _, p := range byDay {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

func (m *MemoryStore) GetWallet(ctx context.Context, address string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[address]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return w.clone(), nil
}

func (m *MemoryStore) RegisterWallet(ctx context.Context, in *Wallet) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[in.Address]
	if !ok {
		w = newWallet(in.Address, m.now())
		w.RiskScore = in.RiskScore
		w.RiskCategory = in.RiskCategory
		if in.AccountStatus.Valid() {
			w.AccountStatus = in.AccountStatus
		}
		m.wallets[in.Address] = w
	}
	if in.Label != "" {
		w.Label = in.Label
	}
	if in.EntityType != "" {
		w.EntityType = in.EntityType
	}
	return w.clone(), nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, address string, change StatusChange) (*Wallet, AccountStatus, error) {
	if !change.Status.Valid() {
		return nil, "", ErrInvalidStatus
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[address]
	if !ok {
		return nil, "", ErrWalletNotFound
	}
	prev := w.AccountStatus
	if change.From != "" && prev != change.From {
		return w.clone(), prev, ErrStatusUnchanged
	}
	if prev == change.Status {
		return w.clone(), prev, ErrStatusUnchanged
	}

	now := m.now()
	w.AccountStatus = change.Status
	if prev == StatusActive {
		w.FlaggedAt = &now
		w.FlaggedBy = change.Actor
	}
	w.Notes = appendNote(w.Notes, now, prev, change)
	return w.clone(), prev, nil
}

// StatusNote formats the line appended to a wallet's notes when its
// status changes.
func StatusNote(now time.Time, prev AccountStatus, change StatusChange) string {
	line := fmt.Sprintf("[%s] %s -> %s by %s", now.UTC().Format(time.RFC3339), prev, change.Status, change.Actor)
	if change.Reason != "" {
		line += ": " + change.Reason
	}
	return line
}

func appendNote(notes string, now time.Time, prev AccountStatus, change StatusChange) string {
	line := StatusNote(now, prev, change)
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

func (m *MemoryStore) SetRiskScore(ctx context.Context, address string, score float64, category string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.walletLocked(address, m.now())
	w.RiskScore = score
	w.RiskCategory = category
	return w.clone(), nil
}

func (m *MemoryStore) ListWallets(ctx context.Context, filter WalletFilter) ([]*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Wallet
	for _, w := range m.wallets {
		if filter.Status != "" && w.AccountStatus != filter.Status {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(w.RiskCategory, filter.Category) {
			continue
		}
		if w.RiskScore < filter.MinRiskScore {
			continue
		}
		matched = append(matched, w)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].RiskScore != matched[j].RiskScore {
			return matched[i].RiskScore > matched[j].RiskScore
		}
		return matched[i].Address < matched[j].Address
	})

	if filter.Offset >= len(matched) {
		return []*Wallet{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	result := make([]*Wallet, len(matched))
	for i, w := range matched {
		result[i] = w.clone()
	}
	return result, nil
}

func (m *MemoryStore) ListAddresses(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.wallets))
	for addr := range m.wallets {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Overview(ctx context.Context) (*Overview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ov := &Overview{
		Wallets:     int64(len(m.wallets)),
		ByStatus:    make(map[AccountStatus]int64),
		ByCategory:  make(map[string]int64),
		Transfers:   int64(len(m.transfers)),
		TotalVolume: new(big.Int),
	}
	for _, w := range m.wallets {
		ov.ByStatus[w.AccountStatus]++
		if w.RiskCategory != "" {
			ov.ByCategory[w.RiskCategory]++
		}
		if w.RiskScore >= 60 {
			ov.HighRisk++
		}
	}
	for _, t := range m.transfers {
		ov.TotalVolume.Add(ov.TotalVolume, t.Value)
	}
	for i := len(m.transfers) - 1; i >= 0 && len(ov.LastTransfers) < 10; i-- {
		ov.LastTransfers = append(ov.LastTransfers, m.transfers[i].clone())
	}
	return ov, nil
}
