package wallets

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// MemoryAuditStore is an in-memory AuditStore for demo/test use.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries map[string][]*AuditEntry
}

// NewMemoryAuditStore creates an in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make(map[string][]*AuditEntry)}
}

func (s *MemoryAuditStore) Append(ctx context.Context, e *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	s.entries[e.Address] = append(s.entries[e.Address], &c)
	return nil
}

func (s *MemoryAuditStore) List(ctx context.Context, address string, limit int) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[address]
	result := make([]*AuditEntry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		c := *all[i]
		result = append(result, &c)
	}
	return result, nil
}

// PostgresAuditStore persists the audit log in wallet_audit_log.
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore creates a PostgreSQL-backed audit store.
func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

func (s *PostgresAuditStore) Append(ctx context.Context, e *AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_audit_log (id, action, address, actor, old_value, new_value, reason, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
	`, e.ID, e.Action, e.Address, e.Actor, e.OldValue, e.NewValue, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresAuditStore) List(ctx context.Context, address string, limit int) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, address, actor, COALESCE(old_value, ''), COALESCE(new_value, ''),
		       COALESCE(reason, ''), created_at
		FROM wallet_audit_log
		WHERE address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Address, &e.Actor, &e.OldValue, &e.NewValue, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
