package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/mbd888/riskgate/internal/alerts"
	"github.com/mbd888/riskgate/internal/idgen"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/logging"
	"github.com/mbd888/riskgate/internal/risk"
	"github.com/mbd888/riskgate/internal/strikes"
	"github.com/mbd888/riskgate/internal/traces"
	"github.com/mbd888/riskgate/internal/validation"
	"github.com/mbd888/riskgate/internal/wei"
)

// Gate runs the decision pipeline for outgoing transfers.
type Gate struct {
	evaluator   Evaluator
	ledger      Ledger
	strikes     Strikes
	blocked     BlockedStore
	assessments AssessmentRecorder
	alerts      AlertRaiser
	observers   []DecisionObserver
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithAssessments appends every verdict to the risk history.
func WithAssessments(r AssessmentRecorder) Option {
	return func(g *Gate) { g.assessments = r }
}

// WithAlerts raises a BLOCKED_TRANSFER alert for each block.
func WithAlerts(r AlertRaiser) Option {
	return func(g *Gate) { g.alerts = r }
}

// WithObservers registers decision observers, such as the live admin feed.
func WithObservers(obs ...DecisionObserver) Option {
	return func(g *Gate) { g.observers = append(g.observers, obs...) }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// New creates a gate.
func New(evaluator Evaluator, l Ledger, s Strikes, blocked BlockedStore, opts ...Option) *Gate {
	g := &Gate{
		evaluator: evaluator,
		ledger:    l,
		strikes:   s,
		blocked:   blocked,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type parsed struct {
	from, to string
	value    *big.Int
	hash     string
}

func parseRequest(req *Request) (*parsed, error) {
	if !validation.IsValidAddress(req.From) {
		return nil, fmt.Errorf("%w: from %q", ErrInvalidAddress, req.From)
	}
	if !validation.IsValidAddress(req.To) {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidAddress, req.To)
	}
	p := &parsed{
		from: validation.NormalizeAddress(req.From),
		to:   validation.NormalizeAddress(req.To),
	}
	if p.from == p.to {
		return nil, ErrSelfTransfer
	}
	v, ok := wei.ParsePositive(req.Amount, req.AmountWei)
	if !ok {
		return nil, ErrInvalidAmount
	}
	p.value = v
	if h := strings.TrimSpace(req.Hash); h != "" {
		if !validation.IsValidTxHash(h) {
			return nil, ErrInvalidHash
		}
		p.hash = strings.ToLower(h)
	}
	return p, nil
}

// Submit decides one transfer request.
//
// Validation runs first and has no side effects. A CRITICAL recipient is
// always blocked. A HIGH recipient is warned (and a strike recorded) unless
// the request carries Override. Everything else is committed.
func (g *Gate) Submit(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	p, err := parseRequest(req)
	if err != nil {
		rejections.WithLabelValues(rejectionLabel(err)).Inc()
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "gate.Submit", traces.From(p.from), traces.To(p.to))
	defer span.End()
	logger := g.loggerFor(ctx).With("from", p.from, "to", p.to)

	resp, err := g.decide(ctx, p, req.Override, logger)
	if err != nil {
		if IsValidation(err) {
			rejections.WithLabelValues(rejectionLabel(err)).Inc()
		} else {
			traces.RecordError(span, err)
			gateErrors.WithLabelValues(errorLabel(err)).Inc()
		}
		return nil, err
	}

	span.SetAttributes(traces.Decision(string(resp.Status)), traces.RiskLevel(string(resp.ReceiverRiskLevel)))
	decisions.WithLabelValues(string(resp.Status)).Inc()
	decisionDuration.WithLabelValues(string(resp.Status)).Observe(time.Since(start).Seconds())
	logger.Info("transfer decision",
		"decision", resp.Status,
		"score", resp.ReceiverRiskScore,
		"level", resp.ReceiverRiskLevel,
		"override", req.Override,
		"transfer_id", resp.TransferID)

	if len(g.observers) > 0 {
		d := Decision{
			From:        p.from,
			To:          p.to,
			AmountWei:   p.value.String(),
			Status:      resp.Status,
			RiskScore:   resp.ReceiverRiskScore,
			RiskLevel:   resp.ReceiverRiskLevel,
			BlockReason: resp.BlockReason,
			TransferID:  resp.TransferID,
			Override:    req.Override,
			Duplicate:   resp.Duplicate,
			DecidedAt:   g.now().UTC(),
		}
		for _, o := range g.observers {
			o.ObserveDecision(d)
		}
	}
	return resp, nil
}

func (g *Gate) decide(ctx context.Context, p *parsed, override bool, logger *slog.Logger) (*Response, error) {
	sender, err := g.ledger.Wallet(ctx, p.from)
	switch {
	case err == nil:
		if !sender.AccountStatus.CanSend() {
			return nil, fmt.Errorf("%w: %s", ErrSenderRestricted, sender.AccountStatus)
		}
	case errors.Is(err, ledger.ErrWalletNotFound):
	default:
		return nil, fmt.Errorf("read sender: %w", err)
	}

	if p.hash != "" {
		if resp, err := g.replay(ctx, p); resp != nil || err != nil {
			return resp, err
		}
	}

	balance, err := g.ledger.Balance(ctx, p.from)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance.Cmp(p.value) < 0 {
		return nil, fmt.Errorf("%w: balance %s ETH, need %s ETH",
			ErrInsufficientBalance, wei.FormatEther(balance), wei.FormatEther(p.value))
	}

	v, err := g.evaluator.Evaluate(ctx, p.to)
	if err != nil {
		return nil, fmt.Errorf("evaluate recipient: %w", err)
	}
	if g.assessments != nil {
		g.assessments.RecordVerdict(ctx, v)
	}

	switch {
	case v.Level == risk.LevelCritical:
		reason := ReasonHighRiskScore
		if v.Blacklisted {
			reason = ReasonBlacklisted
		}
		return g.block(ctx, p, v, reason, logger)
	case v.ReceiverStatus == ledger.StatusSuspended || v.ReceiverStatus == ledger.StatusFrozen:
		return g.block(ctx, p, v, ReasonReceiverRestricted, logger)
	case v.Level == risk.LevelHigh && !override:
		return g.warn(ctx, p, v)
	}
	return g.commit(ctx, p, v)
}

// replay answers a request whose hash is already committed without
// evaluating it again. It returns nil, nil for an unknown hash.
func (g *Gate) replay(ctx context.Context, p *parsed) (*Response, error) {
	t, err := g.ledger.GetTransfer(ctx, p.hash)
	if errors.Is(err, ledger.ErrTransferNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transfer: %w", err)
	}
	if t.From != p.from || t.To != p.to || t.Value.Cmp(p.value) != 0 {
		return nil, ErrHashConflict
	}
	resp := &Response{Status: StatusSuccess, TransferID: t.Hash, Duplicate: true, Message: "Transfer already committed"}
	if bal, err := g.ledger.Balance(ctx, p.from); err == nil {
		resp.SenderBalance = wei.FormatEther(bal)
	}
	return resp, nil
}

func (g *Gate) block(ctx context.Context, p *parsed, v *risk.Verdict, reason BlockReason, logger *slog.Logger) (*Response, error) {
	count, err := g.strikes.Count(ctx, p.from)
	if err != nil {
		logger.Warn("could not read warning count for blocked transfer", "error", err)
	}
	rec := &BlockedTransfer{
		ID:               idgen.New(),
		From:             p.from,
		To:               p.to,
		Value:            new(big.Int).Set(p.value),
		RiskScore:        v.Score,
		RiskLevel:        v.Level,
		BlockReason:      reason,
		UserWarningCount: count,
		BlockedAt:        g.now().UTC(),
	}
	if err := g.blocked.Record(ctx, rec); err != nil {
		return nil, fmt.Errorf("record blocked transfer: %w", err)
	}
	blockReasons.WithLabelValues(string(reason)).Inc()

	if g.alerts != nil {
		_, err := g.alerts.Raise(ctx, &alerts.Alert{
			WalletAddress: p.from,
			AlertType:     alerts.TypeBlockedTransfer,
			Severity:      alerts.SeverityCritical,
			Message:       fmt.Sprintf("Transfer of %s ETH to %s blocked: %s", wei.FormatEther(p.value), p.to, reason),
			RiskScore:     alerts.Score(v.Score),
			Metadata: map[string]any{
				"blockedTransferId": rec.ID,
				"receiver":          p.to,
				"reason":            string(reason),
				"category":          v.Category,
			},
		})
		if err != nil {
			logger.Error("failed to raise block alert", "error", err)
		}
	}

	return &Response{
		Status:            StatusBlocked,
		BlockReason:       reason,
		ReceiverRiskScore: v.Score,
		ReceiverRiskLevel: v.Level,
		CurrentWarnings:   count,
		MaxWarnings:       g.strikes.MaxWarnings(),
		Message:           blockMessage(reason, v),
	}, nil
}

func (g *Gate) warn(ctx context.Context, p *parsed, v *risk.Verdict) (*Response, error) {
	out, err := g.strikes.RecordWarning(ctx, strikes.WarningInput{
		UserID:        p.from,
		WalletAddress: p.from,
		TargetAddress: p.to,
		RiskScore:     v.Score,
		WarningType:   strikes.WarningTypeHighRisk,
	})
	if err != nil {
		if errors.Is(err, strikes.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil, fmt.Errorf("record warning: %w", err)
	}

	id := p.hash
	if id == "" {
		id = idgen.TxHash()
	}
	return &Response{
		Status:            StatusWarning,
		TransferID:        id,
		CurrentWarnings:   out.WarningNumber,
		MaxWarnings:       g.strikes.MaxWarnings(),
		WarningText:       g.strikes.WarningText(out.WarningNumber, out.Suspended),
		ReceiverRiskScore: v.Score,
		ReceiverRiskLevel: v.Level,
		Suspended:         out.Suspended,
		Message:           fmt.Sprintf("This wallet has a risk score of %.2f. Resubmit with override to proceed.", v.Score),
	}, nil
}

func (g *Gate) commit(ctx context.Context, p *parsed, v *risk.Verdict) (*Response, error) {
	res, err := g.ledger.Commit(ctx, &ledger.Transfer{
		Hash:  p.hash,
		From:  p.from,
		To:    p.to,
		Value: p.value,
	})
	if err != nil {
		return nil, mapCommitError(err)
	}
	resp := &Response{
		Status:            StatusSuccess,
		TransferID:        res.Transfer.Hash,
		ReceiverRiskScore: v.Score,
		ReceiverRiskLevel: v.Level,
		Duplicate:         res.Duplicate,
	}
	if bal, err := g.ledger.Balance(ctx, p.from); err == nil {
		resp.SenderBalance = wei.FormatEther(bal)
	}
	return resp, nil
}

func mapCommitError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, ledger.ErrHashConflict):
		return ErrHashConflict
	case errors.Is(err, ledger.ErrConflict):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	default:
		return fmt.Errorf("commit transfer: %w", err)
	}
}

func blockMessage(reason BlockReason, v *risk.Verdict) string {
	switch reason {
	case ReasonBlacklisted:
		if v.Category != "" {
			return fmt.Sprintf("Transfer blocked: receiver is blacklisted (%s)", v.Category)
		}
		return "Transfer blocked: receiver is blacklisted"
	case ReasonReceiverRestricted:
		return fmt.Sprintf("Transfer blocked: receiver account is %s", v.ReceiverStatus)
	default:
		return fmt.Sprintf("Transfer blocked: receiver is high-risk (score: %.2f)", v.Score)
	}
}

func (g *Gate) loggerFor(ctx context.Context) *slog.Logger {
	if id := logging.RequestID(ctx); id != "" {
		return g.logger.With("request_id", id)
	}
	return g.logger
}
