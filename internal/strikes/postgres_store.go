package strikes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mbd888/riskgate/internal/ledger"
)

// PostgresStore persists strikes in PostgreSQL. The counter upsert takes the
// row lock on strike_counters, which serializes increments per user; the
// warning row and the suspension commit in the same transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed strike store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const warningColumns = `id, user_id, wallet_address, target_address, warning_type, risk_score,
	user_action, warning_number, created_at`

func (s *PostgresStore) RecordWarning(ctx context.Context, w *Warning, threshold int, reason string) (*Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapPQError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO strike_counters (user_id, warning_count, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			warning_count = strike_counters.warning_count + 1,
			updated_at    = NOW()
		RETURNING warning_count
	`, w.UserID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to increment strikes: %w", mapPQError(err))
	}

	rec := *w
	rec.WarningNumber = next
	// clock_timestamp() is taken after the counter row lock, so created_at
	// follows warning_number within a user.
	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_warnings (id, user_id, wallet_address, target_address, warning_type,
			risk_score, user_action, warning_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, clock_timestamp())
		RETURNING created_at
	`, rec.ID, rec.UserID, rec.WalletAddress, rec.TargetAddress, rec.WarningType,
		rec.RiskScore, string(rec.UserAction), rec.WarningNumber).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record warning: %w", mapPQError(err))
	}

	suspended := false
	if crossed(next-1, next, threshold) {
		now := time.Now().UTC()
		note := ledger.StatusNote(now, ledger.StatusActive, ledger.StatusChange{
			Status: ledger.StatusSuspended,
			Actor:  ledger.FlaggedBySystem,
			Reason: reason,
		})
		res, err := tx.ExecContext(ctx, `
			UPDATE wallets SET
				account_status = 'suspended',
				flagged_at     = $2,
				flagged_by     = $3,
				notes          = CASE WHEN COALESCE(notes, '') = '' THEN $4 ELSE notes || E'\n' || $4 END,
				updated_at     = NOW()
			WHERE address = $1 AND account_status = 'active'
		`, rec.WalletAddress, now, ledger.FlaggedBySystem, note)
		if err != nil {
			return nil, fmt.Errorf("failed to suspend wallet: %w", mapPQError(err))
		}
		n, _ := res.RowsAffected()
		suspended = n == 1
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPQError(err)
	}
	return &Outcome{Warning: &rec, WarningNumber: next, Suspended: suspended}, nil
}

func (s *PostgresStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT warning_count FROM strike_counters WHERE user_id = $1`, userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *PostgresStore) List(ctx context.Context, userID string, limit int) ([]*Warning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+warningColumns+`
		FROM user_warnings
		WHERE user_id = $1
		ORDER BY created_at DESC, warning_number DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list warnings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*Warning{}
	for rows.Next() {
		w, err := scanWarning(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SetLastAction(ctx context.Context, userID string, action Action) (*Warning, error) {
	w, err := scanWarning(s.db.QueryRowContext(ctx, `
		UPDATE user_warnings SET user_action = $2
		WHERE id = (
			SELECT id FROM user_warnings WHERE user_id = $1
			ORDER BY created_at DESC, warning_number DESC LIMIT 1
		)
		RETURNING `+warningColumns, userID, string(action)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoWarnings
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set warning action: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) Reset(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE strike_counters SET warning_count = 0, updated_at = NOW() WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to reset strikes: %w", mapPQError(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWarning(row rowScanner) (*Warning, error) {
	var (
		w      Warning
		action string
	)
	if err := row.Scan(&w.ID, &w.UserID, &w.WalletAddress, &w.TargetAddress, &w.WarningType,
		&w.RiskScore, &action, &w.WarningNumber, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.UserAction = Action(action)
	return &w, nil
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}
	}
	return err
}

var _ Store = (*PostgresStore)(nil)
