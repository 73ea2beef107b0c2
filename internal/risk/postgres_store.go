package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed risk assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, address, score, risk_level, category, factors, model_version, assessed_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8)
	`,
		a.ID,
		a.Address,
		a.Score,
		string(a.Level),
		a.Category,
		factorsJSON,
		a.ModelVersion,
		a.AssessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAddress(ctx context.Context, address string, limit int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, score, risk_level, COALESCE(category, ''), factors,
		       COALESCE(model_version, ''), assessed_at
		FROM risk_assessments
		WHERE address = $1
		ORDER BY assessed_at DESC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*Assessment{}
	for rows.Next() {
		var (
			a           Assessment
			level       string
			factorsJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.Address, &a.Score, &level, &a.Category, &factorsJSON, &a.ModelVersion, &a.AssessedAt); err != nil {
			return nil, err
		}
		a.Level = Level(level)
		a.Factors = make(map[string]float64)
		_ = json.Unmarshal(factorsJSON, &a.Factors)
		result = append(result, &a)
	}
	return result, rows.Err()
}
