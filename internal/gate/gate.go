// Package gate decides whether an outgoing transfer is allowed, warned or
// blocked, and commits allowed transfers to the ledger.
package gate

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/mbd888/riskgate/internal/alerts"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/risk"
	"github.com/mbd888/riskgate/internal/strikes"
)

// Validation failures. Nothing is evaluated or recorded when one is returned.
var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrInvalidHash         = errors.New("transfer hash must be 0x followed by 64 hex characters")
	ErrSelfTransfer        = errors.New("sender and receiver are the same wallet")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSenderRestricted    = errors.New("sender account is suspended or frozen")
	ErrHashConflict        = errors.New("transfer hash already used by a different transfer")
)

// ErrTransient is returned when a commit lost every retry against
// concurrent writers. No state was changed; the request is safe to retry.
var ErrTransient = errors.New("transient conflict, retry the request")

// IsValidation reports whether err is a caller mistake rather than a
// server-side failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAddress, ErrInvalidAmount, ErrInvalidHash, ErrSelfTransfer,
		ErrInsufficientBalance, ErrSenderRestricted, ErrHashConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Status is the gate's decision as reported to the caller.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusBlocked Status = "blocked"
)

// BlockReason explains a BLOCK decision.
type BlockReason string

const (
	ReasonBlacklisted        BlockReason = "blacklisted"
	ReasonHighRiskScore      BlockReason = "high_risk_score"
	ReasonReceiverRestricted BlockReason = "receiver_restricted"
)

// Request is one outgoing transfer attempt.
type Request struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Amount is decimal ether; AmountWei, when set, takes precedence.
	Amount    string `json:"amount"`
	AmountWei string `json:"amountWei"`
	// Override confirms a previously warned HIGH-risk transfer.
	Override bool `json:"override"`
	// Hash makes the commit idempotent across client retries. The gate
	// returns one with every warning for use on the override attempt.
	Hash string `json:"hash"`
}

// Response is the gate's answer.
type Response struct {
	Status            Status      `json:"status"`
	TransferID        string      `json:"transferId,omitempty"`
	CurrentWarnings   int         `json:"currentWarnings,omitempty"`
	MaxWarnings       int         `json:"maxWarnings,omitempty"`
	WarningText       string      `json:"warningText,omitempty"`
	BlockReason       BlockReason `json:"blockReason,omitempty"`
	ReceiverRiskScore float64     `json:"receiverRiskScore"`
	ReceiverRiskLevel risk.Level  `json:"receiverRiskLevel"`
	Suspended         bool        `json:"suspended,omitempty"`
	Duplicate         bool        `json:"duplicate,omitempty"`
	SenderBalance     string      `json:"senderBalance,omitempty"`
	Message           string      `json:"message,omitempty"`
}

// Evaluator produces the recipient verdict.
type Evaluator interface {
	Evaluate(ctx context.Context, address string) (*risk.Verdict, error)
}

// Ledger commits transfers and answers balance reads.
type Ledger interface {
	Commit(ctx context.Context, t *ledger.Transfer) (*ledger.CommitResult, error)
	Balance(ctx context.Context, address string) (*big.Int, error)
	Wallet(ctx context.Context, address string) (*ledger.Wallet, error)
	GetTransfer(ctx context.Context, hash string) (*ledger.Transfer, error)
}

// Strikes records ignored warnings.
type Strikes interface {
	RecordWarning(ctx context.Context, in strikes.WarningInput) (*strikes.Outcome, error)
	Count(ctx context.Context, userID string) (int, error)
	MaxWarnings() int
	WarningText(count int, suspended bool) string
}

// AssessmentRecorder appends a verdict to the risk history.
type AssessmentRecorder interface {
	RecordVerdict(ctx context.Context, v *risk.Verdict)
}

// Decision is the record of one completed gate decision handed to observers.
type Decision struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	AmountWei   string      `json:"amountWei"`
	Status      Status      `json:"status"`
	RiskScore   float64     `json:"riskScore"`
	RiskLevel   risk.Level  `json:"riskLevel"`
	BlockReason BlockReason `json:"blockReason,omitempty"`
	TransferID  string      `json:"transferId,omitempty"`
	Override    bool        `json:"override"`
	Duplicate   bool        `json:"duplicate,omitempty"`
	DecidedAt   time.Time   `json:"decidedAt"`
}

// DecisionObserver is notified after every decision. Implementations must
// not block.
type DecisionObserver interface {
	ObserveDecision(d Decision)
}

// AlertRaiser records BLOCKED_TRANSFER alerts.
type AlertRaiser interface {
	Raise(ctx context.Context, a *alerts.Alert) (*alerts.Alert, error)
}
