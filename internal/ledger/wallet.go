package ledger

import (
	"context"
	"math/big"
	"time"
)

// AccountStatus is the lifecycle state of a wallet.
type AccountStatus string

const (
	StatusActive      AccountStatus = "active"
	StatusSuspended   AccountStatus = "suspended"
	StatusFrozen      AccountStatus = "frozen"
	StatusUnderReview AccountStatus = "under_review"
)

// FlaggedBySystem marks status changes made by the strike ladder.
const FlaggedBySystem = "SYSTEM_AUTO_SUSPEND"

// Valid reports whether s is one of the four account states.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusFrozen, StatusUnderReview:
		return true
	}
	return false
}

// CanSend reports whether a wallet in this state may initiate transfers.
func (s AccountStatus) CanSend() bool {
	return s != StatusSuspended && s != StatusFrozen
}

// Wallet is the registry row for an address.
type Wallet struct {
	Address            string        `json:"address"`
	Label              string        `json:"label,omitempty"`
	EntityType         string        `json:"entityType,omitempty"`
	RiskScore          float64       `json:"riskScore"`
	RiskCategory       string        `json:"riskCategory,omitempty"`
	AccountStatus      AccountStatus `json:"accountStatus"`
	TotalTransactions  int64         `json:"totalTransactions"`
	TotalValueSent     *big.Int      `json:"totalValueSent"`
	TotalValueReceived *big.Int      `json:"totalValueReceived"`
	FirstSeenAt        time.Time     `json:"firstSeenAt"`
	LastActivityAt     *time.Time    `json:"lastActivityAt,omitempty"`
	FlaggedAt          *time.Time    `json:"flaggedAt,omitempty"`
	FlaggedBy          string        `json:"flaggedBy,omitempty"`
	Notes              string        `json:"notes,omitempty"`
}

// CachedBalance is received minus sent from the cached aggregates.
func (w *Wallet) CachedBalance() *big.Int {
	return new(big.Int).Sub(w.TotalValueReceived, w.TotalValueSent)
}

func (w *Wallet) clone() *Wallet {
	c := *w
	c.TotalValueSent = new(big.Int).Set(w.TotalValueSent)
	c.TotalValueReceived = new(big.Int).Set(w.TotalValueReceived)
	if w.LastActivityAt != nil {
		t := *w.LastActivityAt
		c.LastActivityAt = &t
	}
	if w.FlaggedAt != nil {
		t := *w.FlaggedAt
		c.FlaggedAt = &t
	}
	return &c
}

func newWallet(address string, now time.Time) *Wallet {
	return &Wallet{
		Address:            address,
		AccountStatus:      StatusActive,
		TotalValueSent:     new(big.Int),
		TotalValueReceived: new(big.Int),
		FirstSeenAt:        now,
	}
}

// StatusChange describes a requested account status transition.
type StatusChange struct {
	Status AccountStatus
	Actor  string
	Reason string
	// From, when set, makes the change conditional on the current status.
	From AccountStatus
}

// WalletFilter narrows ListWallets.
type WalletFilter struct {
	Status       AccountStatus
	Category     string
	MinRiskScore float64
	Limit        int
	Offset       int
}

// Overview is the registry-wide summary used by the admin dashboard.
type Overview struct {
	Wallets       int64                   `json:"wallets"`
	ByStatus      map[AccountStatus]int64 `json:"byStatus"`
	ByCategory    map[string]int64        `json:"byCategory"`
	HighRisk      int64                   `json:"highRisk"` // risk_score >= 60
	Transfers     int64                   `json:"transfers"`
	TotalVolume   *big.Int                `json:"totalVolume"`
	LastTransfers []*Transfer             `json:"lastTransfers,omitempty"`
}

// WalletStore persists wallet registry rows.
type WalletStore interface {
	GetWallet(ctx context.Context, address string) (*Wallet, error)
	// RegisterWallet creates the wallet if absent, otherwise updates its
	// label and entity type. Aggregates and status are never touched.
	RegisterWallet(ctx context.Context, w *Wallet) (*Wallet, error)
	// UpdateStatus applies change and returns the new row and the previous
	// status. flagged_at/flagged_by are stamped only on a transition away
	// from active. A conditional change whose From does not match returns
	// ErrStatusUnchanged.
	UpdateStatus(ctx context.Context, address string, change StatusChange) (*Wallet, AccountStatus, error)
	SetRiskScore(ctx context.Context, address string, score float64, category string) (*Wallet, error)
	ListWallets(ctx context.Context, filter WalletFilter) ([]*Wallet, error)
	ListAddresses(ctx context.Context) ([]string, error)
	Overview(ctx context.Context) (*Overview, error)
}
