package strikes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/riskgate/internal/alerts"
	"github.com/mbd888/riskgate/internal/idgen"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/retry"
	"github.com/mbd888/riskgate/internal/traces"
	"github.com/mbd888/riskgate/internal/validation"
)

// AlertRaiser records the suspension alert.
type AlertRaiser interface {
	Raise(ctx context.Context, a *alerts.Alert) (*alerts.Alert, error)
}

// StatusAuditor records the wallet audit row for an automatic suspension.
type StatusAuditor interface {
	RecordSystemChange(ctx context.Context, address string, from, to ledger.AccountStatus, reason, actor string) error
}

// Ledger is the strike service used by the transfer gate.
type Ledger struct {
	store       Store
	alerts      AlertRaiser
	audit       StatusAuditor
	maxWarnings int
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxWarnings sets the suspension threshold.
func WithMaxWarnings(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxWarnings = n
		}
	}
}

// WithAlerts sets where USER_SUSPENDED alerts go.
func WithAlerts(r AlertRaiser) Option {
	return func(l *Ledger) { l.alerts = r }
}

// WithAudit sets where automatic suspensions are audited.
func WithAudit(a StatusAuditor) Option {
	return func(l *Ledger) { l.audit = a }
}

// WithRetry sets how many times a conflicting increment is attempted.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(l *Ledger) {
		l.maxAttempts = maxAttempts
		l.retryDelay = baseDelay
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a strike ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		maxWarnings: DefaultMaxWarnings,
		maxAttempts: 5,
		retryDelay:  10 * time.Millisecond,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxWarnings returns the suspension threshold.
func (l *Ledger) MaxWarnings() int { return l.maxWarnings }

// WarningInput describes one issued warning.
type WarningInput struct {
	UserID        string
	WalletAddress string
	TargetAddress string
	RiskScore     float64
	WarningType   string
}

// RecordWarning counts one ignored warning for the user. Exactly one call
// per crossing of the threshold returns Suspended=true and raises the
// USER_SUSPENDED alert.
func (l *Ledger) RecordWarning(ctx context.Context, in WarningInput) (*Outcome, error) {
	if in.UserID == "" {
		return nil, ErrInvalidUser
	}
	if !validation.IsValidAddress(in.WalletAddress) || !validation.IsValidAddress(in.TargetAddress) {
		return nil, ErrInvalidAddress
	}
	if in.WarningType == "" {
		in.WarningType = WarningTypeHighRisk
	}

	ctx, span := traces.StartSpan(ctx, "strikes.RecordWarning",
		traces.UserID(in.UserID), traces.To(in.TargetAddress))
	defer span.End()

	reason := fmt.Sprintf("auto-suspended after %d ignored risk warnings", l.maxWarnings)

	var out *Outcome
	err := retry.DoNotify(ctx, l.maxAttempts, l.retryDelay, func() error {
		w := &Warning{
			ID:            idgen.New(),
			UserID:        in.UserID,
			WalletAddress: in.WalletAddress,
			TargetAddress: in.TargetAddress,
			WarningType:   in.WarningType,
			RiskScore:     in.RiskScore,
			UserAction:    ActionIgnored,
			CreatedAt:     l.now().UTC(),
		}
		var rerr error
		out, rerr = l.store.RecordWarning(ctx, w, l.maxWarnings, reason)
		if errors.Is(rerr, ErrConflict) {
			return rerr
		}
		if rerr != nil {
			return retry.Permanent(rerr)
		}
		return nil
	}, func(err error, wait time.Duration) {
		strikeConflicts.Inc()
		l.logger.Debug("strike increment conflict, retrying", "user", in.UserID, "wait", wait)
	})
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	strikesRecorded.Inc()
	l.logger.Info("risk warning recorded",
		"user", in.UserID, "target", in.TargetAddress,
		"warning_number", out.WarningNumber, "score", in.RiskScore)

	if out.Suspended {
		suspensions.Inc()
		l.logger.Warn("account auto-suspended", "user", in.UserID, "wallet", in.WalletAddress, "warnings", out.WarningNumber)
		if l.audit != nil {
			if err := l.audit.RecordSystemChange(ctx, in.WalletAddress,
				ledger.StatusActive, ledger.StatusSuspended, reason, ledger.FlaggedBySystem); err != nil {
				l.logger.Error("failed to audit auto-suspension", "wallet", in.WalletAddress, "error", err)
			}
		}
		l.raiseSuspended(ctx, in, out)
	}
	return out, nil
}

func (l *Ledger) raiseSuspended(ctx context.Context, in WarningInput, out *Outcome) {
	if l.alerts == nil {
		return
	}
	_, err := l.alerts.Raise(ctx, &alerts.Alert{
		WalletAddress: in.WalletAddress,
		AlertType:     alerts.TypeUserSuspended,
		Severity:      alerts.SeverityHigh,
		Message: fmt.Sprintf("User account auto-suspended after ignoring %d risk warnings. Last attempted transfer to %s.",
			out.WarningNumber, in.TargetAddress),
		RiskScore: alerts.Score(in.RiskScore),
		Metadata: map[string]any{
			"warningCount": out.WarningNumber,
			"lastTarget":   in.TargetAddress,
			"lastRisk":     in.RiskScore,
			"userId":       in.UserID,
		},
	})
	if err != nil {
		// The suspension itself is committed; only the alert is lost.
		l.logger.Error("failed to raise suspension alert", "wallet", in.WalletAddress, "error", err)
	}
}

// WarningText is the message shown with a WARN decision or a suspension.
func (l *Ledger) WarningText(count int, suspended bool) string {
	if suspended || count >= l.maxWarnings {
		return fmt.Sprintf("Account suspended after %d ignored risk warnings", l.maxWarnings)
	}
	return fmt.Sprintf("You have %d warnings remaining before account suspension.", l.maxWarnings-count)
}

// Count returns the user's current warning count.
func (l *Ledger) Count(ctx context.Context, userID string) (int, error) {
	return l.store.Count(ctx, userID)
}

// List returns the user's warnings, newest first.
func (l *Ledger) List(ctx context.Context, userID string, limit int) ([]*Warning, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.store.List(ctx, userID, limit)
}

// SetAction records what the user did with their latest warning.
func (l *Ledger) SetAction(ctx context.Context, userID string, action Action) (*Warning, error) {
	if !action.Valid() {
		return nil, ErrInvalidAction
	}
	return l.store.SetLastAction(ctx, userID, action)
}

// Reset clears the user's counter. A suspended wallet stays suspended.
func (l *Ledger) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUser
	}
	if err := l.store.Reset(ctx, userID); err != nil {
		return err
	}
	strikeResets.Inc()
	l.logger.Info("strikes reset", "user", userID)
	return nil
}
