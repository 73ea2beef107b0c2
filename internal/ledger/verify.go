package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/mbd888/riskgate/internal/validation"
)

// Verification compares a wallet's cached aggregates with sums recomputed
// from the ledger.
type Verification struct {
	Address         string   `json:"address"`
	CachedSent      *big.Int `json:"cachedSent"`
	CachedReceived  *big.Int `json:"cachedReceived"`
	DerivedSent     *big.Int `json:"derivedSent"`
	DerivedReceived *big.Int `json:"derivedReceived"`
	CachedTxCount   int64    `json:"cachedTxCount"`
	DerivedTxCount  int64    `json:"derivedTxCount"`
	Match           bool     `json:"match"`
}

// VerifyWallet recomputes sent and received for address and compares them
// with the wallet row.
func (l *Ledger) VerifyWallet(ctx context.Context, address string) (*Verification, error) {
	done := observeOp("verify")
	defer done()

	address = validation.NormalizeAddress(address)
	w, totals, err := l.store.Snapshot(ctx, address)
	if errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", address, err)
	}

	v := &Verification{
		Address:         address,
		CachedSent:      w.TotalValueSent,
		CachedReceived:  w.TotalValueReceived,
		DerivedSent:     totals.Sent,
		DerivedReceived: totals.Received,
		CachedTxCount:   w.TotalTransactions,
		DerivedTxCount:  totals.SentCount + totals.ReceivedCount,
	}
	v.Match = v.CachedSent.Cmp(v.DerivedSent) == 0 &&
		v.CachedReceived.Cmp(v.DerivedReceived) == 0 &&
		v.CachedTxCount == v.DerivedTxCount
	return v, nil
}

// WalletStats is the per-wallet activity summary served by the stats endpoint.
type WalletStats struct {
	Address        string   `json:"address"`
	Balance        *big.Int `json:"balance"`
	TotalSent      *big.Int `json:"totalSent"`
	TotalReceived  *big.Int `json:"totalReceived"`
	SentCount      int64    `json:"sentCount"`
	ReceivedCount  int64    `json:"receivedCount"`
	Counterparties int      `json:"counterparties"`
	Wallet         *Wallet  `json:"wallet,omitempty"`
}

// Stats combines the wallet row with ledger-derived totals.
func (l *Ledger) Stats(ctx context.Context, address string) (*WalletStats, error) {
	address = validation.NormalizeAddress(address)
	totals, err := l.store.DerivedTotals(ctx, address)
	if err != nil {
		return nil, err
	}
	conns, err := l.store.Connections(ctx, address, 200)
	if err != nil {
		return nil, err
	}
	stats := &WalletStats{
		Address:        address,
		Balance:        totals.Balance(),
		TotalSent:      totals.Sent,
		TotalReceived:  totals.Received,
		SentCount:      totals.SentCount,
		ReceivedCount:  totals.ReceivedCount,
		Counterparties: len(conns),
	}
	w, err := l.store.GetWallet(ctx, address)
	switch {
	case err == nil:
		stats.Wallet = w
	case !errors.Is(err, ErrWalletNotFound):
		return nil, err
	}
	return stats, nil
}
