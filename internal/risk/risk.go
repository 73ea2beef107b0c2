// Package risk turns a recipient's blacklist status and precomputed score
// into a verdict, and keeps the append-only history of scores supplied by
// the external scoring model.
package risk

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/riskgate/internal/blacklist"
	"github.com/mbd888/riskgate/internal/ledger"
)

// Level is the coarse risk band for a score.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Score thresholds. Each is the inclusive lower bound of its band.
const (
	MediumThreshold   = 40.0
	HighThreshold     = 60.0
	CriticalThreshold = 80.0

	// BlacklistScore is reported for a listed address with no wallet row.
	BlacklistScore = 100.0
)

var (
	ErrInvalidScore   = errors.New("risk score must be between 0 and 100")
	ErrInvalidAddress = errors.New("invalid address")
)

// LevelForScore maps a 0-100 score to its band.
func LevelForScore(score float64) Level {
	switch {
	case score >= CriticalThreshold:
		return LevelCritical
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Verdict is the evaluator's answer for one recipient.
type Verdict struct {
	Address     string             `json:"address"`
	Score       float64            `json:"score"`
	Level       Level              `json:"level"`
	Blacklisted bool               `json:"blacklisted"`
	Severity    blacklist.Severity `json:"severity,omitempty"`
	// Category is the blacklist category when listed, else the wallet's
	// risk category.
	Category string `json:"category,omitempty"`
	// Known is false when the registry has never seen the address.
	Known          bool                 `json:"known"`
	ReceiverStatus ledger.AccountStatus `json:"receiverStatus,omitempty"`
}

// Assessment is one historical score snapshot.
type Assessment struct {
	ID           string             `json:"id"`
	Address      string             `json:"address"`
	Score        float64            `json:"score"`
	Level        Level              `json:"level"`
	Category     string             `json:"category,omitempty"`
	Factors      map[string]float64 `json:"factors"`
	ModelVersion string             `json:"modelVersion,omitempty"`
	AssessedAt   time.Time          `json:"assessedAt"`
}

func (a *Assessment) clone() *Assessment {
	c := *a
	c.Factors = make(map[string]float64, len(a.Factors))
	for k, v := range a.Factors {
		c.Factors[k] = v
	}
	return &c
}

// Store persists assessments for audit.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	ListByAddress(ctx context.Context, address string, limit int) ([]*Assessment, error)
}
