// Package strikes counts ignored high-risk warnings per user and suspends
// the user's wallet when the count first reaches the limit.
package strikes

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidUser    = errors.New("user id is required")
	ErrInvalidAddress = errors.New("warning wallet and target must be valid addresses")
	ErrInvalidAction  = errors.New("invalid warning action")
	ErrNoWarnings     = errors.New("user has no warnings")
	// ErrConflict is returned by stores when a concurrent increment
	// aborted the unit. The Ledger retries it.
	ErrConflict = errors.New("concurrent strike update")
)

// DefaultMaxWarnings is the number of ignored warnings that suspends an account.
const DefaultMaxWarnings = 3

// WarningTypeHighRisk is recorded for HIGH-level recipients.
const WarningTypeHighRisk = "HIGH_RISK_RECIPIENT"

// Action is what the user did after seeing a warning.
type Action string

const (
	ActionIgnored   Action = "ignored"
	ActionCancelled Action = "cancelled"
	ActionReported  Action = "reported"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionIgnored, ActionCancelled, ActionReported:
		return true
	}
	return false
}

// Warning is one issued risk warning.
type Warning struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	WalletAddress string    `json:"walletAddress"`
	TargetAddress string    `json:"targetAddress"`
	WarningType   string    `json:"warningType"`
	RiskScore     float64   `json:"riskScore"`
	UserAction    Action    `json:"userAction"`
	WarningNumber int       `json:"warningNumber"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Outcome is the result of recording a warning.
type Outcome struct {
	Warning       *Warning `json:"warning"`
	WarningNumber int      `json:"warningNumber"`
	// Suspended is true only for the call that moved the wallet from
	// active to suspended.
	Suspended bool `json:"suspended"`
}

// Store persists strike counters and warnings.
type Store interface {
	// RecordWarning increments the user's counter, appends w with its
	// WarningNumber set, and when the counter crosses threshold (old below,
	// new at or above) suspends w.WalletAddress if it is active. All of it
	// is one unit.
	RecordWarning(ctx context.Context, w *Warning, threshold int, reason string) (*Outcome, error)
	Count(ctx context.Context, userID string) (int, error)
	List(ctx context.Context, userID string, limit int) ([]*Warning, error)
	// SetLastAction updates the action on the user's most recent warning.
	SetLastAction(ctx context.Context, userID string, action Action) (*Warning, error)
	// Reset sets the counter to zero. Warnings and wallet status are kept.
	Reset(ctx context.Context, userID string) error
}

// crossed reports whether the counter moved across threshold.
func crossed(prev, next, threshold int) bool {
	return prev < threshold && next >= threshold
}
