package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/riskgate/internal/blacklist"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/validation"
)

// BlacklistIndex returns the active entry for an address, or nil.
type BlacklistIndex interface {
	Lookup(ctx context.Context, address string) (*blacklist.Entry, error)
}

// WalletReader reads registry rows.
type WalletReader interface {
	GetWallet(ctx context.Context, address string) (*ledger.Wallet, error)
}

// Evaluator combines the blacklist and the registry score. It only reads.
type Evaluator struct {
	blacklist BlacklistIndex
	wallets   WalletReader
}

// NewEvaluator creates an evaluator.
func NewEvaluator(bl BlacklistIndex, wallets WalletReader) *Evaluator {
	return &Evaluator{blacklist: bl, wallets: wallets}
}

// Evaluate returns the verdict for a candidate recipient.
//
// A listed address is CRITICAL whatever its score. Otherwise the recorded
// score is banded by LevelForScore. An address the registry has never seen
// is LOW with score 0.
func (e *Evaluator) Evaluate(ctx context.Context, address string) (*Verdict, error) {
	if !validation.IsValidAddress(address) {
		return nil, ErrInvalidAddress
	}
	address = validation.NormalizeAddress(address)
	v := &Verdict{Address: address, Level: LevelLow}

	w, err := e.wallets.GetWallet(ctx, address)
	switch {
	case err == nil:
		v.Known = true
		v.Score = w.RiskScore
		v.Category = w.RiskCategory
		v.ReceiverStatus = w.AccountStatus
	case !errors.Is(err, ledger.ErrWalletNotFound):
		return nil, fmt.Errorf("read wallet %s: %w", address, err)
	}

	entry, err := e.blacklist.Lookup(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup %s: %w", address, err)
	}
	if entry != nil {
		v.Blacklisted = true
		v.Severity = entry.Severity
		v.Category = entry.Category
		v.Level = LevelCritical
		if !v.Known {
			v.Score = BlacklistScore
		}
		evaluations.WithLabelValues(string(v.Level)).Inc()
		return v, nil
	}

	v.Level = LevelForScore(v.Score)
	evaluations.WithLabelValues(string(v.Level)).Inc()
	return v, nil
}
