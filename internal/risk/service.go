package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskgate/internal/idgen"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/validation"
)

// ScoreWriter updates a wallet's current score.
type ScoreWriter interface {
	SetRiskScore(ctx context.Context, address string, score float64, category string) (*ledger.Wallet, error)
}

// ScoreInput is one score produced by the external scoring model.
type ScoreInput struct {
	Address      string
	Score        float64
	Category     string
	Factors      map[string]float64
	ModelVersion string
}

// Service records scores and their history.
type Service struct {
	store   Store
	wallets ScoreWriter
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a risk service.
func NewService(store Store, wallets ScoreWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, wallets: wallets, logger: logger, now: time.Now}
}

// RoundScore rounds to the two decimals the registry stores.
func RoundScore(score float64) (float64, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, ErrInvalidScore
	}
	rounded, _ := decimal.NewFromFloat(score).Round(2).Float64()
	if rounded < 0 || rounded > 100 {
		return 0, ErrInvalidScore
	}
	return rounded, nil
}

// Ingest appends an assessment and makes its score the wallet's current one.
// The wallet row is created if the address has not been seen yet.
func (s *Service) Ingest(ctx context.Context, in ScoreInput) (*Assessment, error) {
	if !validation.IsValidAddress(in.Address) {
		return nil, ErrInvalidAddress
	}
	score, err := RoundScore(in.Score)
	if err != nil {
		return nil, err
	}

	a := &Assessment{
		ID:           idgen.New(),
		Address:      validation.NormalizeAddress(in.Address),
		Score:        score,
		Level:        LevelForScore(score),
		Category:     strings.TrimSpace(in.Category),
		Factors:      in.Factors,
		ModelVersion: in.ModelVersion,
		AssessedAt:   s.now().UTC(),
	}
	if a.Factors == nil {
		a.Factors = map[string]float64{}
	}

	if err := s.store.Record(ctx, a); err != nil {
		return nil, fmt.Errorf("record assessment: %w", err)
	}
	if _, err := s.wallets.SetRiskScore(ctx, a.Address, a.Score, a.Category); err != nil {
		return nil, fmt.Errorf("update wallet score: %w", err)
	}
	scoresIngested.Inc()
	s.logger.Info("risk score ingested", "address", a.Address, "score", a.Score, "level", a.Level, "model", a.ModelVersion)
	return a, nil
}

// RecordVerdict appends the verdict the gate acted on. Failures are logged
// and otherwise ignored; the decision has already been made.
func (s *Service) RecordVerdict(ctx context.Context, v *Verdict) {
	factors := map[string]float64{"registry_score": v.Score}
	if v.Blacklisted {
		factors["blacklisted"] = 1
	}
	a := &Assessment{
		ID:           idgen.New(),
		Address:      v.Address,
		Score:        v.Score,
		Level:        v.Level,
		Category:     v.Category,
		Factors:      factors,
		ModelVersion: "gate",
		AssessedAt:   s.now().UTC(),
	}
	if err := s.store.Record(ctx, a); err != nil {
		s.logger.Warn("failed to record gate assessment", "address", v.Address, "error", err)
	}
}

// History returns the most recent assessments for address.
func (s *Service) History(ctx context.Context, address string, limit int) ([]*Assessment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByAddress(ctx, validation.NormalizeAddress(address), limit)
}
