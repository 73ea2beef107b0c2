package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists alerts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed alert store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const alertColumns = `id, wallet_address, alert_type, severity, message, risk_score, metadata,
	detected_at, acknowledged, acknowledged_at, COALESCE(acknowledged_by, '')`

func (s *PostgresStore) Create(ctx context.Context, a *Alert) error {
	meta := a.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal alert metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, wallet_address, alert_type, severity, message, risk_score, metadata, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.WalletAddress, string(a.AlertType), string(a.Severity), a.Message, a.RiskScore, metaJSON, a.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Alert, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("alert_type = $%d", string(f.Type))
	}
	if f.WalletAddress != "" {
		add("wallet_address = $%d", f.WalletAddress)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if !f.Since.IsZero() {
		add("detected_at >= $%d", f.Since)
	}
	if f.UnacknowledgedOnly {
		where = append(where, "NOT acknowledged")
	}

	q := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY detected_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Acknowledge(ctx context.Context, id, by string, at time.Time) (*Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `
		UPDATE alerts SET acknowledged = TRUE, acknowledged_at = $2, acknowledged_by = $3
		WHERE id = $1 AND NOT acknowledged
		RETURNING `+alertColumns, id, at, by))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyAcknowledged
	}
	return a, err
}

func (s *PostgresStore) Counts(ctx context.Context, since time.Time) (*Counts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_type, severity, COUNT(*),
		       COUNT(*) FILTER (WHERE NOT acknowledged),
		       COUNT(*) FILTER (WHERE detected_at >= $1)
		FROM alerts GROUP BY alert_type, severity
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	c := &Counts{ByType: map[Type]int64{}, BySeverity: map[Severity]int64{}}
	for rows.Next() {
		var (
			typ, sev             string
			total, unack, recent int64
		)
		if err := rows.Scan(&typ, &sev, &total, &unack, &recent); err != nil {
			return nil, err
		}
		c.Total += total
		c.Unacknowledged += unack
		c.Recent += recent
		c.ByType[Type(typ)] += total
		c.BySeverity[Severity(sev)] += total
	}
	return c, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var (
		a        Alert
		typ, sev string
		score    sql.NullFloat64
		metaJSON []byte
		ackAt    sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.WalletAddress, &typ, &sev, &a.Message, &score, &metaJSON,
		&a.DetectedAt, &a.Acknowledged, &ackAt, &a.AcknowledgedBy); err != nil {
		return nil, err
	}
	a.AlertType = Type(typ)
	a.Severity = Severity(sev)
	if score.Valid {
		a.RiskScore = &score.Float64
	}
	if ackAt.Valid {
		t := ackAt.Time
		a.AcknowledgedAt = &t
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &a.Metadata)
		if len(a.Metadata) == 0 {
			a.Metadata = nil
		}
	}
	return &a, nil
}
