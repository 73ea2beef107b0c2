// Package wallets is the admin-facing wallet registry: status reads,
// status changes with an audit trail, listing and registration.
package wallets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/riskgate/internal/alerts"
	"github.com/mbd888/riskgate/internal/idgen"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/validation"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrInvalidStatus  = errors.New("status must be one of active, suspended, frozen, under_review")
)

// ActionStatusChange is the audit action for admin status changes.
const ActionStatusChange = "WALLET_STATUS_CHANGE"

// AuditEntry is one row of the wallet audit log.
type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Address   string    `json:"address"`
	Actor     string    `json:"actor"`
	OldValue  string    `json:"oldValue,omitempty"`
	NewValue  string    `json:"newValue,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditStore persists the wallet audit log.
type AuditStore interface {
	Append(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, address string, limit int) ([]*AuditEntry, error)
}

// AlertRaiser records status-change alerts.
type AlertRaiser interface {
	Raise(ctx context.Context, a *alerts.Alert) (*alerts.Alert, error)
}

// StatusView is the public status read of a wallet.
type StatusView struct {
	Address       string               `json:"address"`
	RiskScore     float64              `json:"riskScore"`
	RiskCategory  string               `json:"riskCategory,omitempty"`
	AccountStatus ledger.AccountStatus `json:"accountStatus"`
	FlaggedAt     *time.Time           `json:"flaggedAt,omitempty"`
}

// StatusChangeResult reports an applied status change.
type StatusChangeResult struct {
	Address   string               `json:"address"`
	OldStatus ledger.AccountStatus `json:"oldStatus"`
	NewStatus ledger.AccountStatus `json:"newStatus"`
	Wallet    *ledger.Wallet       `json:"wallet"`
}

// ListResult is a filtered page of wallets plus registry-wide counts.
type ListResult struct {
	Wallets    []*ledger.Wallet `json:"wallets"`
	Count      int              `json:"count"`
	Statistics Statistics       `json:"statistics"`
}

// Statistics are registry-wide counts shown next to wallet lists.
type Statistics struct {
	TotalWallets   int64 `json:"totalWallets"`
	HighRiskCount  int64 `json:"highRiskCount"`
	SuspendedCount int64 `json:"suspendedCount"`
	FrozenCount    int64 `json:"frozenCount"`
}

// Service implements wallet registry operations.
type Service struct {
	store  ledger.WalletStore
	audit  AuditStore
	alerts AlertRaiser
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a wallet service. alerts may be nil.
func NewService(store ledger.WalletStore, audit AuditStore, alerts AlertRaiser, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, alerts: alerts, logger: logger, now: time.Now}
}

// Status returns the wallet's current score, category and account status.
func (s *Service) Status(ctx context.Context, address string) (*StatusView, error) {
	addr, err := normalize(address)
	if err != nil {
		return nil, err
	}
	w, err := s.store.GetWallet(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		Address:       w.Address,
		RiskScore:     w.RiskScore,
		RiskCategory:  w.RiskCategory,
		AccountStatus: w.AccountStatus,
		FlaggedAt:     w.FlaggedAt,
	}, nil
}

// Get returns the full wallet row.
func (s *Service) Get(ctx context.Context, address string) (*ledger.Wallet, error) {
	addr, err := normalize(address)
	if err != nil {
		return nil, err
	}
	return s.store.GetWallet(ctx, addr)
}

// ChangeStatus applies an admin status change, appends an audit row and
// raises a STATUS_CHANGED alert. Setting the current status again returns
// ledger.ErrStatusUnchanged.
func (s *Service) ChangeStatus(ctx context.Context, address string, status ledger.AccountStatus, reason, actor string) (*StatusChangeResult, error) {
	addr, err := normalize(address)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if actor == "" {
		actor = "system"
	}

	w, prev, err := s.store.UpdateStatus(ctx, addr, ledger.StatusChange{Status: status, Actor: actor, Reason: reason})
	if err != nil {
		return nil, err
	}
	statusChanges.WithLabelValues(string(status)).Inc()
	s.logger.Info("wallet status changed", "address", addr, "from", prev, "to", status, "actor", actor)

	if err := s.appendAudit(ctx, addr, actor, prev, status, reason); err != nil {
		// The status row is already updated; the change is still reported.
		s.logger.Error("failed to append wallet audit entry", "address", addr, "error", err)
	}

	if s.alerts != nil {
		severity := alerts.SeverityHigh
		if status == ledger.StatusUnderReview || status == ledger.StatusActive {
			severity = alerts.SeverityMedium
		}
		_, err := s.alerts.Raise(ctx, &alerts.Alert{
			WalletAddress: addr,
			AlertType:     alerts.TypeStatusChanged,
			Severity:      severity,
			Message:       fmt.Sprintf("Wallet status changed from %s to %s. Reason: %s", prev, status, reason),
			RiskScore:     alerts.Score(w.RiskScore),
			Metadata:      map[string]any{"oldStatus": string(prev), "newStatus": string(status), "changedBy": actor},
		})
		if err != nil {
			s.logger.Error("failed to raise status alert", "address", addr, "error", err)
		}
	}

	return &StatusChangeResult{Address: addr, OldStatus: prev, NewStatus: status, Wallet: w}, nil
}

// RecordSystemChange appends the audit row for a status change that was
// applied outside this service, such as the strike ladder's automatic
// suspension. No alert is raised; the caller has its own.
func (s *Service) RecordSystemChange(ctx context.Context, address string, from, to ledger.AccountStatus, reason, actor string) error {
	addr, err := normalize(address)
	if err != nil {
		return err
	}
	statusChanges.WithLabelValues(string(to)).Inc()
	return s.appendAudit(ctx, addr, actor, from, to, reason)
}

func (s *Service) appendAudit(ctx context.Context, addr, actor string, from, to ledger.AccountStatus, reason string) error {
	entry := &AuditEntry{
		ID:        idgen.New(),
		Action:    ActionStatusChange,
		Address:   addr,
		Actor:     actor,
		OldValue:  string(from),
		NewValue:  string(to),
		Reason:    reason,
		CreatedAt: s.now().UTC(),
	}
	return s.audit.Append(ctx, entry)
}

// List returns wallets matching f, highest risk first, with registry counts.
func (s *Service) List(ctx context.Context, f ledger.WalletFilter) (*ListResult, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	list, err := s.store.ListWallets(ctx, f)
	if err != nil {
		return nil, err
	}
	ov, err := s.store.Overview(ctx)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Wallets: list,
		Count:   len(list),
		Statistics: Statistics{
			TotalWallets:   ov.Wallets,
			HighRiskCount:  ov.HighRisk,
			SuspendedCount: ov.ByStatus[ledger.StatusSuspended],
			FrozenCount:    ov.ByStatus[ledger.StatusFrozen],
		},
	}, nil
}

// RegisterInput creates or relabels a wallet.
type RegisterInput struct {
	Address    string
	Label      string
	EntityType string
}

// Register creates the wallet if absent, otherwise updates its label and
// entity type.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*ledger.Wallet, error) {
	addr, err := normalize(in.Address)
	if err != nil {
		return nil, err
	}
	return s.store.RegisterWallet(ctx, &ledger.Wallet{
		Address:    addr,
		Label:      validation.SanitizeString(in.Label, 200),
		EntityType: validation.SanitizeString(in.EntityType, 50),
	})
}

// Audit returns the wallet's audit trail, newest first.
func (s *Service) Audit(ctx context.Context, address string, limit int) ([]*AuditEntry, error) {
	addr, err := normalize(address)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.audit.List(ctx, addr, limit)
}

func normalize(address string) (string, error) {
	if !validation.IsValidAddress(address) {
		return "", ErrInvalidAddress
	}
	return validation.NormalizeAddress(address), nil
}
