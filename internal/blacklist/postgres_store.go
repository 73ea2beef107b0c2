package blacklist

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed blacklist store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `address, category, source, COALESCE(description, ''), severity,
	is_active, reported_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	e := &Entry{}
	var (
		severity string
		expires  sql.NullTime
	)
	if err := row.Scan(&e.Address, &e.Category, &e.Source, &e.Description, &severity,
		&e.IsActive, &e.ReportedAt, &expires); err != nil {
		return nil, err
	}
	e.Severity = Severity(severity)
	if expires.Valid {
		t := expires.Time
		e.ExpiresAt = &t
	}
	return e, nil
}

func (p *PostgresStore) Get(ctx context.Context, address string) (*Entry, error) {
	e, err := scanEntry(p.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM blacklist WHERE address = $1`, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (p *PostgresStore) Upsert(ctx context.Context, e *Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO blacklist (address, category, source, description, severity, is_active, reported_at, expires_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NOW())
		ON CONFLICT (address) DO UPDATE SET
			category    = EXCLUDED.category,
			source      = EXCLUDED.source,
			description = EXCLUDED.description,
			severity    = EXCLUDED.severity,
			is_active   = EXCLUDED.is_active,
			reported_at = EXCLUDED.reported_at,
			expires_at  = EXCLUDED.expires_at,
			updated_at  = NOW()
	`, e.Address, e.Category, e.Source, e.Description, string(e.Severity), e.IsActive, e.ReportedAt, e.ExpiresAt)
	return err
}

func (p *PostgresStore) Retire(ctx context.Context, address string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE blacklist SET is_active = FALSE, updated_at = NOW() WHERE address = $1`, address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM blacklist
		WHERE is_active OR NOT $1
		ORDER BY reported_at DESC, address
		LIMIT $2 OFFSET $3
	`, activeOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
