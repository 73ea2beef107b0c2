package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL. Tables are created by the
// goose migrations in /migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `address, COALESCE(label, ''), COALESCE(entity_type, ''), risk_score,
	COALESCE(risk_category, ''), account_status, total_transactions,
	total_value_sent::TEXT, total_value_received::TEXT, first_seen_at,
	last_activity_at, flagged_at, COALESCE(flagged_by, ''), COALESCE(notes, '')`

const transferColumns = `tx_hash, COALESCE(from_address, ''), COALESCE(to_address, ''),
	value::TEXT, timestamp, success, COALESCE(flag_reason, '')`

// Commit runs in a SERIALIZABLE transaction. The sender's wallet row is
// locked before its derived balance is summed, so two commits debiting the
// same sender are ordered by the row lock rather than by a retry.
func (p *PostgresStore) Commit(ctx context.Context, t *Transfer, opts CommitOptions) (*Transfer, bool, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, mapPQError(err)
	}
	defer tx.Rollback()

	existing, err := scanTransfer(tx.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE tx_hash = $1`, t.Hash))
	switch {
	case err == nil:
		if !existing.samePayload(t) {
			return nil, false, ErrHashConflict
		}
		return existing, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, mapPQError(err)
	}

	for _, addr := range []string{t.From, t.To} {
		if addr == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (address, first_seen_at, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (address) DO NOTHING
		`, addr, t.Timestamp); err != nil {
			return nil, false, mapPQError(fmt.Errorf("failed to create wallet: %w", err))
		}
	}

	if t.From != "" && !opts.SkipBalanceCheck {
		if _, err := tx.ExecContext(ctx,
			`SELECT 1 FROM wallets WHERE address = $1 FOR UPDATE`, t.From); err != nil {
			return nil, false, mapPQError(err)
		}
		var balStr string
		err := tx.QueryRowContext(ctx, `
			SELECT (
				COALESCE((SELECT SUM(value) FROM transfers WHERE to_address = $1 AND success), 0) -
				COALESCE((SELECT SUM(value) FROM transfers WHERE from_address = $1 AND success), 0)
			)::TEXT
		`, t.From).Scan(&balStr)
		if err != nil {
			return nil, false, mapPQError(err)
		}
		bal, ok := new(big.Int).SetString(balStr, 10)
		if !ok {
			return nil, false, fmt.Errorf("invalid balance %q for %s", balStr, t.From)
		}
		if bal.Cmp(t.Value) < 0 {
			return nil, false, fmt.Errorf("%w: balance %s, need %s", ErrInsufficientBalance, bal, t.Value)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transfers (tx_hash, from_address, to_address, value, timestamp, success, flag_reason)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4::NUMERIC(78,0), $5, $6, NULLIF($7, ''))
		ON CONFLICT (tx_hash) DO NOTHING
	`, t.Hash, t.From, t.To, t.Value.String(), t.Timestamp, t.Success, t.FlagReason)
	if err != nil {
		return nil, false, mapPQError(fmt.Errorf("failed to insert transfer: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Another transaction committed the same hash after our first read.
		return nil, false, ErrConflict
	}

	if t.From != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE wallets SET
				total_transactions = total_transactions + 1,
				total_value_sent   = total_value_sent + $2::NUMERIC(78,0),
				last_activity_at   = GREATEST(COALESCE(last_activity_at, $3), $3),
				updated_at         = NOW()
			WHERE address = $1
		`, t.From, t.Value.String(), t.Timestamp); err != nil {
			return nil, false, mapPQError(fmt.Errorf("failed to update sender: %w", err))
		}
	}
	if t.To != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE wallets SET
				total_transactions   = total_transactions + 1,
				total_value_received = total_value_received + $2::NUMERIC(78,0),
				last_activity_at     = GREATEST(COALESCE(last_activity_at, $3), $3),
				updated_at           = NOW()
			WHERE address = $1
		`, t.To, t.Value.String(), t.Timestamp); err != nil {
			return nil, false, mapPQError(fmt.Errorf("failed to update receiver: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, mapPQError(err)
	}
	return t.clone(), false, nil
}

// mapPQError turns serialization failures and deadlocks into ErrConflict.
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*Transfer, error) {
	t := &Transfer{}
	var value string
	if err := row.Scan(&t.Hash, &t.From, &t.To, &value, &t.Timestamp, &t.Success, &t.FlagReason); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid transfer value %q", value)
	}
	t.Value = v
	t.Timestamp = t.Timestamp.UTC()
	return t, nil
}

func scanWallet(row rowScanner) (*Wallet, error) {
	w := &Wallet{}
	var (
		sent, received string
		status         string
		lastActivity   sql.NullTime
		flaggedAt      sql.NullTime
	)
	err := row.Scan(&w.Address, &w.Label, &w.EntityType, &w.RiskScore, &w.RiskCategory,
		&status, &w.TotalTransactions, &sent, &received, &w.FirstSeenAt,
		&lastActivity, &flaggedAt, &w.FlaggedBy, &w.Notes)
	if err != nil {
		return nil, err
	}
	w.AccountStatus = AccountStatus(status)
	var ok bool
	if w.TotalValueSent, ok = new(big.Int).SetString(sent, 10); !ok {
		return nil, fmt.Errorf("invalid total_value_sent %q", sent)
	}
	if w.TotalValueReceived, ok = new(big.Int).SetString(received, 10); !ok {
		return nil, fmt.Errorf("invalid total_value_received %q", received)
	}
	if lastActivity.Valid {
		ts := lastActivity.Time.UTC()
		w.LastActivityAt = &ts
	}
	if flaggedAt.Valid {
		ts := flaggedAt.Time.UTC()
		w.FlaggedAt = &ts
	}
	return w, nil
}

func (p *PostgresStore) GetTransfer(ctx context.Context, hash string) (*Transfer, error) {
	t, err := scanTransfer(p.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE tx_hash = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransferNotFound
	}
	return t, err
}

func (p *PostgresStore) History(ctx context.Context, address string, limit, offset int) ([]*Transfer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM transfers
		WHERE from_address = $1 OR to_address = $1
		ORDER BY timestamp DESC, tx_hash
		LIMIT $2 OFFSET $3
	`, address, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*Transfer, 0, limit)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *PostgresStore) DerivedTotals(ctx context.Context, address string) (*Totals, error) {
	return derivedTotals(ctx, p.db, address)
}

// Snapshot runs both reads in one REPEATABLE READ transaction so they see
// the same set of committed transfers.
func (p *PostgresStore) Snapshot(ctx context.Context, address string) (*Wallet, *Totals, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	w, err := scanWallet(tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	totals, err := derivedTotals(ctx, tx, address)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return w, totals, nil
}

func derivedTotals(ctx context.Context, q queryer, address string) (*Totals, error) {
	var sent, received string
	totals := &Totals{Address: address}
	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(value) FILTER (WHERE from_address = $1), 0)::TEXT,
			COALESCE(SUM(value) FILTER (WHERE to_address = $1), 0)::TEXT,
			COUNT(*) FILTER (WHERE from_address = $1),
			COUNT(*) FILTER (WHERE to_address = $1)
		FROM transfers
		WHERE (from_address = $1 OR to_address = $1) AND success
	`, address).Scan(&sent, &received, &totals.SentCount, &totals.ReceivedCount)
	if err != nil {
		return nil, err
	}
	var ok bool
	if totals.Sent, ok = new(big.Int).SetString(sent, 10); !ok {
		return nil, fmt.Errorf("invalid sent sum %q", sent)
	}
	if totals.Received, ok = new(big.Int).SetString(received, 10); !ok {
		return nil, fmt.Errorf("invalid received sum %q", received)
	}
	return totals, nil
}

func (p *PostgresStore) Connections(ctx context.Context, address string, limit int) ([]*Connection, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT
			CASE WHEN from_address = $1 THEN to_address ELSE from_address END AS peer,
			COUNT(*) FILTER (WHERE from_address = $1),
			COUNT(*) FILTER (WHERE to_address = $1),
			COALESCE(SUM(value) FILTER (WHERE from_address = $1), 0)::TEXT,
			COALESCE(SUM(value) FILTER (WHERE to_address = $1), 0)::TEXT,
			MAX(timestamp)
		FROM transfers
		WHERE (from_address = $1 AND to_address IS NOT NULL)
		   OR (to_address = $1 AND from_address IS NOT NULL)
		GROUP BY peer
		ORDER BY COUNT(*) DESC, peer
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Connection
	for rows.Next() {
		c := &Connection{}
		var sent, received string
		if err := rows.Scan(&c.Counterparty, &c.SentCount, &c.ReceivedCount, &sent, &received, &c.LastTransfer); err != nil {
			return nil, err
		}
		c.ValueSent, _ = new(big.Int).SetString(sent, 10)
		c.ValueReceived, _ = new(big.Int).SetString(received, 10)
		c.LastTransfer = c.LastTransfer.UTC()
		result = append(result, c)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Flow(ctx context.Context, address string, since time.Time) ([]*FlowPoint, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT
			to_char(transfers.timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COALESCE(SUM(value) FILTER (WHERE $1::TEXT = '' OR to_address = $1), 0)::TEXT,
			COALESCE(SUM(value) FILTER (WHERE $1::TEXT = '' OR from_address = $1), 0)::TEXT
		FROM transfers
		WHERE transfers.timestamp >= $2
		  AND ($1::TEXT = '' OR from_address = $1 OR to_address = $1)
		GROUP BY day
		ORDER BY day
	`, address, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*FlowPoint{}
	for rows.Next() {
		var in, out string
		fp := &FlowPoint{}
		if err := rows.Scan(&fp.Date, &in, &out); err != nil {
			return nil, err
		}
		var ok bool
		if fp.Inflow, ok = new(big.Int).SetString(in, 10); !ok {
			return nil, fmt.Errorf("invalid inflow sum %q", in)
		}
		if fp.Outflow, ok = new(big.Int).SetString(out, 10); !ok {
			return nil, fmt.Errorf("invalid outflow sum %q", out)
		}
		result = append(result, fp)
	}
	return result, rows.Err()
}

func (p *PostgresStore) GetWallet(ctx context.Context, address string) (*Wallet, error) {
	w, err := scanWallet(p.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

func (p *PostgresStore) RegisterWallet(ctx context.Context, in *Wallet) (*Wallet, error) {
	status := in.AccountStatus
	if !status.Valid() {
		status = StatusActive
	}
	w, err := scanWallet(p.db.QueryRowContext(ctx, `
		INSERT INTO wallets (address, label, entity_type, risk_score, risk_category, account_status, first_seen_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''), $6, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE SET
			label       = COALESCE(NULLIF(EXCLUDED.label, ''), wallets.label),
			entity_type = COALESCE(NULLIF(EXCLUDED.entity_type, ''), wallets.entity_type),
			updated_at  = NOW()
		RETURNING `+walletColumns,
		in.Address, in.Label, in.EntityType, in.RiskScore, in.RiskCategory, string(status)))
	if err != nil {
		return nil, fmt.Errorf("failed to register wallet: %w", err)
	}
	return w, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, address string, change StatusChange) (*Wallet, AccountStatus, error) {
	if !change.Status.Valid() {
		return nil, "", ErrInvalidStatus
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	current, err := scanWallet(tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE address = $1 FOR UPDATE`, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrWalletNotFound
	}
	if err != nil {
		return nil, "", err
	}
	prev := current.AccountStatus
	if (change.From != "" && prev != change.From) || prev == change.Status {
		return current, prev, ErrStatusUnchanged
	}

	now := time.Now().UTC()
	notes := appendNote(current.Notes, now, prev, change)
	w, err := scanWallet(tx.QueryRowContext(ctx, `
		UPDATE wallets SET
			account_status = $2,
			flagged_at     = CASE WHEN $3 THEN $4 ELSE flagged_at END,
			flagged_by     = CASE WHEN $3 THEN $5 ELSE flagged_by END,
			notes          = $6,
			updated_at     = NOW()
		WHERE address = $1
		RETURNING `+walletColumns,
		address, string(change.Status), prev == StatusActive, now, change.Actor, notes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return w, prev, nil
}

func (p *PostgresStore) SetRiskScore(ctx context.Context, address string, score float64, category string) (*Wallet, error) {
	w, err := scanWallet(p.db.QueryRowContext(ctx, `
		INSERT INTO wallets (address, risk_score, risk_category, first_seen_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NOW(), NOW())
		ON CONFLICT (address) DO UPDATE SET
			risk_score    = EXCLUDED.risk_score,
			risk_category = EXCLUDED.risk_category,
			updated_at    = NOW()
		RETURNING `+walletColumns, address, score, category))
	if err != nil {
		return nil, fmt.Errorf("failed to set risk score: %w", err)
	}
	return w, nil
}

func (p *PostgresStore) ListWallets(ctx context.Context, filter WalletFilter) ([]*Wallet, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("account_status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("LOWER(risk_category) = LOWER($%d)", len(args)))
	}
	if filter.MinRiskScore > 0 {
		args = append(args, filter.MinRiskScore)
		where = append(where, fmt.Sprintf("risk_score >= $%d", len(args)))
	}

	query := `SELECT ` + walletColumns + ` FROM wallets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY risk_score DESC, address"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (p *PostgresStore) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT address FROM wallets ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Overview(ctx context.Context) (*Overview, error) {
	ov := &Overview{
		ByStatus:   make(map[AccountStatus]int64),
		ByCategory: make(map[string]int64),
	}

	rows, err := p.db.QueryContext(ctx, `SELECT account_status, COUNT(*) FROM wallets GROUP BY account_status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		ov.ByStatus[AccountStatus(status)] = n
		ov.Wallets += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = p.db.QueryContext(ctx, `
		SELECT risk_category, COUNT(*) FROM wallets
		WHERE risk_category IS NOT NULL AND risk_category <> ''
		GROUP BY risk_category
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			rows.Close()
			return nil, err
		}
		ov.ByCategory[cat] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallets WHERE risk_score >= 60`).Scan(&ov.HighRisk); err != nil {
		return nil, err
	}

	var volume string
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(value), 0)::TEXT FROM transfers`).Scan(&ov.Transfers, &volume); err != nil {
		return nil, err
	}
	ov.TotalVolume, _ = new(big.Int).SetString(volume, 10)
	if ov.TotalVolume == nil {
		ov.TotalVolume = new(big.Int)
	}

	recent, err := p.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers ORDER BY timestamp DESC, tx_hash LIMIT 10`)
	if err != nil {
		return nil, err
	}
	defer recent.Close()
	for recent.Next() {
		t, err := scanTransfer(recent)
		if err != nil {
			return nil, err
		}
		ov.LastTransfers = append(ov.LastTransfers, t)
	}
	return ov, recent.Err()
}
