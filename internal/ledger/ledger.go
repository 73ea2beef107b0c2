// Package ledger is the append-only transfer ledger and the wallet rows whose
// aggregates it maintains.
//
// A commit appends one Transfer and updates the sender's and receiver's
// aggregates (transaction count, value sent/received, last activity) as a
// single atomic unit. Balances are derived from the transfers themselves:
//
//	balance(a) = sum(value where to = a) - sum(value where from = a)
//
// The wallet aggregates are a cached projection of the same sums, checked by
// VerifyWallet.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/mbd888/riskgate/internal/idgen"
	"github.com/mbd888/riskgate/internal/retry"
	"github.com/mbd888/riskgate/internal/traces"
	"github.com/mbd888/riskgate/internal/validation"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrSelfTransfer        = errors.New("sender and receiver are the same wallet")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrHashConflict        = errors.New("transfer hash already used by a different transfer")
	ErrInvalidStatus       = errors.New("invalid account status")
	ErrStatusUnchanged     = errors.New("wallet already has that status")

	// ErrConflict reports lost serialization against a concurrent writer.
	// Ledger retries it; once retries run out it is returned wrapped.
	ErrConflict = errors.New("concurrent update conflict")
)

// Transfer is one immutable ledger entry. Value is in wei.
type Transfer struct {
	Hash       string    `json:"hash"`
	From       string    `json:"from,omitempty"` // empty for external credits
	To         string    `json:"to,omitempty"`   // empty for contract-creation-like flows
	Value      *big.Int  `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	FlagReason string    `json:"flagReason,omitempty"`
}

func (t *Transfer) clone() *Transfer {
	c := *t
	c.Value = new(big.Int).Set(t.Value)
	return &c
}

// samePayload reports whether o describes the same movement of funds as t.
func (t *Transfer) samePayload(o *Transfer) bool {
	return t.From == o.From && t.To == o.To && t.Value.Cmp(o.Value) == 0
}

// CommitOptions adjusts a single commit.
type CommitOptions struct {
	// SkipBalanceCheck admits transfers observed elsewhere (chain ingestion)
	// whose funding may predate this ledger.
	SkipBalanceCheck bool
}

// CommitResult is the stored transfer plus whether it already existed.
type CommitResult struct {
	Transfer  *Transfer `json:"transfer"`
	Duplicate bool      `json:"duplicate"`
}

// Totals are sums computed directly from ledger entries.
type Totals struct {
	Address       string   `json:"address"`
	Sent          *big.Int `json:"sent"`
	Received      *big.Int `json:"received"`
	SentCount     int64    `json:"sentCount"`
	ReceivedCount int64    `json:"receivedCount"`
}

// Balance is Received - Sent.
func (t *Totals) Balance() *big.Int {
	return new(big.Int).Sub(t.Received, t.Sent)
}

// Connection summarizes transfers between a wallet and one counterparty.
type Connection struct {
	Counterparty  string    `json:"counterparty"`
	SentCount     int64     `json:"sentCount"`
	ReceivedCount int64     `json:"receivedCount"`
	ValueSent     *big.Int  `json:"valueSent"`
	ValueReceived *big.Int  `json:"valueReceived"`
	LastTransfer  time.Time `json:"lastTransfer"`
}

// FlowPoint is one UTC day of money movement. Without a wallet filter
// Inflow and Outflow both carry the day's total volume.
type FlowPoint struct {
	Date    string   `json:"date"` // YYYY-MM-DD
	Inflow  *big.Int `json:"inflow"`
	Outflow *big.Int `json:"outflow"`
}

// Store persists transfers and wallet rows.
type Store interface {
	// Commit appends t and applies its aggregate updates atomically. The
	// sender's balance is checked inside the same unit. A hash that already
	// exists with the same payload returns the stored transfer with
	// duplicate=true; with a different payload it returns ErrHashConflict.
	Commit(ctx context.Context, t *Transfer, opts CommitOptions) (*Transfer, bool, error)
	GetTransfer(ctx context.Context, hash string) (*Transfer, error)
	History(ctx context.Context, address string, limit, offset int) ([]*Transfer, error)
	DerivedTotals(ctx context.Context, address string) (*Totals, error)
	// Snapshot reads the wallet row and its derived totals from one
	// consistent view, so a concurrent commit lands in both or neither.
	Snapshot(ctx context.Context, address string) (*Wallet, *Totals, error)
	Connections(ctx context.Context, address string, limit int) ([]*Connection, error)
	// Flow groups transfers at or after since by UTC date, oldest first.
	// An empty address covers every transfer.
	Flow(ctx context.Context, address string, since time.Time) ([]*FlowPoint, error)

	WalletStore
}

// Ledger wraps a Store with validation, conflict retries and metrics.
type Ledger struct {
	store       Store
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetry sets how many times a conflicting commit is attempted.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(l *Ledger) {
		l.maxAttempts = maxAttempts
		l.retryDelay = baseDelay
	}
}

// WithLogger sets the ledger logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a new ledger
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		maxAttempts: 5,
		retryDelay:  10 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying store.
func (l *Ledger) Store() Store { return l.store }

// Commit records a transfer initiated through the gate. The sender must
// hold at least t.Value at commit time.
func (l *Ledger) Commit(ctx context.Context, t *Transfer) (*CommitResult, error) {
	return l.commit(ctx, t, CommitOptions{})
}

// Ingest records a transfer observed outside the gate (chain ingestion or an
// external credit with no sender). The sender balance check is skipped.
func (l *Ledger) Ingest(ctx context.Context, t *Transfer) (*CommitResult, error) {
	return l.commit(ctx, t, CommitOptions{SkipBalanceCheck: true})
}

func (l *Ledger) commit(ctx context.Context, t *Transfer, opts CommitOptions) (*CommitResult, error) {
	in, err := normalizeTransfer(t, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "ledger.Commit",
		traces.From(in.From), traces.To(in.To), traces.Hash(in.Hash))
	defer span.End()

	op := "commit"
	if opts.SkipBalanceCheck {
		op = "ingest"
	}
	done := observeOp(op)
	defer done()

	var (
		stored    *Transfer
		duplicate bool
	)
	err = retry.DoNotify(ctx, l.maxAttempts, l.retryDelay, func() error {
		var cerr error
		stored, duplicate, cerr = l.store.Commit(ctx, in, opts)
		if errors.Is(cerr, ErrConflict) {
			return cerr
		}
		if cerr != nil {
			return retry.Permanent(cerr)
		}
		return nil
	}, func(err error, wait time.Duration) {
		commitConflicts.Inc()
		l.logger.Debug("ledger commit conflict, retrying", "hash", in.Hash, "wait", wait)
	})
	if err != nil {
		traces.RecordError(span, err)
		commitFailures.WithLabelValues(failureLabel(err)).Inc()
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("commit %s: retries exhausted: %w", in.Hash, err)
		}
		return nil, err
	}

	if duplicate {
		commitDuplicates.Inc()
	}
	return &CommitResult{Transfer: stored, Duplicate: duplicate}, nil
}

func normalizeTransfer(t *Transfer, opts CommitOptions) (*Transfer, error) {
	if t == nil || t.Value == nil || t.Value.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	in := t.clone()

	if in.From != "" {
		if !validation.IsValidAddress(in.From) {
			return nil, fmt.Errorf("%w: from %q", ErrInvalidAddress, in.From)
		}
		in.From = validation.NormalizeAddress(in.From)
	} else if !opts.SkipBalanceCheck {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidAddress)
	}
	if in.To != "" {
		if !validation.IsValidAddress(in.To) {
			return nil, fmt.Errorf("%w: to %q", ErrInvalidAddress, in.To)
		}
		in.To = validation.NormalizeAddress(in.To)
	}
	if in.From == "" && in.To == "" {
		return nil, fmt.Errorf("%w: transfer needs a sender or a receiver", ErrInvalidAddress)
	}
	if in.From != "" && in.From == in.To {
		return nil, ErrSelfTransfer
	}

	if in.Hash == "" {
		in.Hash = idgen.TxHash()
	}
	in.Hash = normalizeHash(in.Hash)
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
	in.Success = true
	return in, nil
}

// Balance returns the balance derived from ledger entries.
func (l *Ledger) Balance(ctx context.Context, address string) (*big.Int, error) {
	done := observeOp("balance")
	defer done()

	totals, err := l.store.DerivedTotals(ctx, validation.NormalizeAddress(address))
	if err != nil {
		return nil, err
	}
	return totals.Balance(), nil
}

// Totals returns the ledger-derived sums for an address.
func (l *Ledger) Totals(ctx context.Context, address string) (*Totals, error) {
	return l.store.DerivedTotals(ctx, validation.NormalizeAddress(address))
}

// GetTransfer returns a committed transfer by hash.
func (l *Ledger) GetTransfer(ctx context.Context, hash string) (*Transfer, error) {
	return l.store.GetTransfer(ctx, normalizeHash(hash))
}

// History returns transfers involving address, newest first.
func (l *Ledger) History(ctx context.Context, address string, limit, offset int) ([]*Transfer, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.store.History(ctx, validation.NormalizeAddress(address), limit, offset)
}

// Connections returns the wallet's counterparties ordered by transfer count.
func (l *Ledger) Connections(ctx context.Context, address string, limit int) ([]*Connection, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return l.store.Connections(ctx, validation.NormalizeAddress(address), limit)
}

// Wallet returns the registry row for address.
func (l *Ledger) Wallet(ctx context.Context, address string) (*Wallet, error) {
	return l.store.GetWallet(ctx, validation.NormalizeAddress(address))
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrHashConflict):
		return "hash_conflict"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "storage"
	}
}

func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
