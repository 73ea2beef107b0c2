package gate

import (
	"context"
	"math/big"
	"time"

	"github.com/mbd888/riskgate/internal/risk"
)

// BlockedTransfer is the audit row written once per BLOCK decision.
type BlockedTransfer struct {
	ID               string      `json:"id"`
	From             string      `json:"from"`
	To               string      `json:"to"`
	Value            *big.Int    `json:"value"`
	RiskScore        float64     `json:"riskScore"`
	RiskLevel        risk.Level  `json:"riskLevel"`
	BlockReason      BlockReason `json:"blockReason"`
	UserWarningCount int         `json:"userWarningCount"`
	BlockedAt        time.Time   `json:"blockedAt"`
}

func (b *BlockedTransfer) clone() *BlockedTransfer {
	c := *b
	c.Value = new(big.Int).Set(b.Value)
	return &c
}

// BlockedFilter narrows BlockedStore.List.
type BlockedFilter struct {
	From   string
	To     string
	Reason BlockReason
	Limit  int
	Offset int
}

// BlockedStats summarizes the blocked-transfer log.
type BlockedStats struct {
	TotalBlocked int64                 `json:"totalBlocked"`
	BlockedToday int64                 `json:"blockedToday"`
	TotalValue   *big.Int              `json:"totalValueBlocked"`
	ByReason     map[BlockReason]int64 `json:"byReason"`
}

// BlockedStore is the write-once log of blocked transfers.
type BlockedStore interface {
	Record(ctx context.Context, b *BlockedTransfer) error
	List(ctx context.Context, f BlockedFilter) ([]*BlockedTransfer, error)
	// Stats counts rows; since bounds BlockedToday.
	Stats(ctx context.Context, since time.Time) (*BlockedStats, error)
}
