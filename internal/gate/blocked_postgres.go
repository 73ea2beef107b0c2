package gate

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mbd888/riskgate/internal/risk"
)

// PostgresBlockedStore persists blocked transfers in PostgreSQL.
type PostgresBlockedStore struct {
	db *sql.DB
}

// NewPostgresBlockedStore creates a PostgreSQL-backed blocked-transfer log.
func NewPostgresBlockedStore(db *sql.DB) *PostgresBlockedStore {
	return &PostgresBlockedStore{db: db}
}

func (s *PostgresBlockedStore) Record(ctx context.Context, b *BlockedTransfer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocked_transfers (id, from_address, to_address, value, risk_score, risk_level,
			block_reason, user_warning_count, blocked_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8, $9)
	`, b.ID, b.From, b.To, b.Value.String(), b.RiskScore, string(b.RiskLevel),
		string(b.BlockReason), b.UserWarningCount, b.BlockedAt)
	if err != nil {
		return fmt.Errorf("failed to record blocked transfer: %w", err)
	}
	return nil
}

func (s *PostgresBlockedStore) List(ctx context.Context, f BlockedFilter) ([]*BlockedTransfer, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.From != "" {
		add("from_address = $%d", f.From)
	}
	if f.To != "" {
		add("to_address = $%d", f.To)
	}
	if f.Reason != "" {
		add("block_reason = $%d", string(f.Reason))
	}

	q := `SELECT id, from_address, to_address, value::TEXT, risk_score, risk_level, block_reason,
		user_warning_count, blocked_at FROM blocked_transfers`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY blocked_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*BlockedTransfer{}
	for rows.Next() {
		var (
			b            BlockedTransfer
			value        string
			level, cause string
		)
		if err := rows.Scan(&b.ID, &b.From, &b.To, &value, &b.RiskScore, &level, &cause,
			&b.UserWarningCount, &b.BlockedAt); err != nil {
			return nil, err
		}
		v, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("bad blocked transfer value %q", value)
		}
		b.Value = v
		b.RiskLevel = risk.Level(level)
		b.BlockReason = BlockReason(cause)
		result = append(result, &b)
	}
	return result, rows.Err()
}

func (s *PostgresBlockedStore) Stats(ctx context.Context, since time.Time) (*BlockedStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_reason, COUNT(*), COUNT(*) FILTER (WHERE blocked_at >= $1), COALESCE(SUM(value), 0)::TEXT
		FROM blocked_transfers GROUP BY block_reason
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute blocked stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	st := &BlockedStats{TotalValue: new(big.Int), ByReason: map[BlockReason]int64{}}
	for rows.Next() {
		var (
			reason       string
			total, today int64
			sum          string
		)
		if err := rows.Scan(&reason, &total, &today, &sum); err != nil {
			return nil, err
		}
		v, ok := new(big.Int).SetString(sum, 10)
		if !ok {
			return nil, fmt.Errorf("bad blocked value sum %q", sum)
		}
		st.TotalBlocked += total
		st.BlockedToday += today
		st.TotalValue.Add(st.TotalValue, v)
		st.ByReason[BlockReason(reason)] = total
	}
	return st, rows.Err()
}
