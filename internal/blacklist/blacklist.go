// Package blacklist answers whether an address is a known bad actor.
//
// Entries are maintained by an admin process; the Index only reads them.
// A lookup matches the normalized address exactly and only counts entries
// that are active and not yet expired.
package blacklist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mbd888/riskgate/internal/validation"
)

var (
	ErrNotFound     = errors.New("blacklist entry not found")
	ErrInvalidEntry = errors.New("invalid blacklist entry")
)

// Severity grades how bad a listed address is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity accepts any casing and defaults empty input to HIGH.
func ParseSeverity(s string) (Severity, bool) {
	if strings.TrimSpace(s) == "" {
		return SeverityHigh, true
	}
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.Valid()
}

// Entry is one listed address.
type Entry struct {
	Address     string     `json:"address"`
	Category    string     `json:"category"`
	Source      string     `json:"source"`
	Description string     `json:"description,omitempty"`
	Severity    Severity   `json:"severity"`
	IsActive    bool       `json:"isActive"`
	ReportedAt  time.Time  `json:"reportedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// ActiveAt reports whether the entry blocks at time now.
func (e *Entry) ActiveAt(now time.Time) bool {
	if e == nil || !e.IsActive {
		return false
	}
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}

func (e *Entry) clone() *Entry {
	c := *e
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Store persists blacklist entries keyed by normalized address.
type Store interface {
	// Get returns the entry for address whether or not it is active.
	Get(ctx context.Context, address string) (*Entry, error)
	Upsert(ctx context.Context, e *Entry) error
	// Retire marks the entry inactive. Entries are never deleted.
	Retire(ctx context.Context, address string) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Entry, error)
}

// Index is the read side used by the risk evaluator, plus the admin
// mutations that stand in for the governance process.
type Index struct {
	store Store
	now   func() time.Time
}

// NewIndex creates an Index over store.
func NewIndex(store Store) *Index {
	return &Index{store: store, now: time.Now}
}

// IsBlacklisted reports whether address has an active, unexpired entry.
// Malformed addresses are simply not listed.
func (i *Index) IsBlacklisted(ctx context.Context, address string) (bool, Severity, error) {
	e, err := i.Lookup(ctx, address)
	if err != nil || e == nil {
		return false, "", err
	}
	return true, e.Severity, nil
}

// Lookup returns the active entry for address, or nil if there is none.
func (i *Index) Lookup(ctx context.Context, address string) (*Entry, error) {
	if !validation.IsValidAddress(address) {
		return nil, nil
	}
	done := observeLookup()
	defer done()

	e, err := i.store.Get(ctx, validation.NormalizeAddress(address))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !e.ActiveAt(i.now()) {
		return nil, nil
	}
	lookupHits.Inc()
	return e, nil
}

// Add lists an address, replacing any previous entry for it.
func (i *Index) Add(ctx context.Context, e *Entry) (*Entry, error) {
	if e == nil || !validation.IsValidAddress(e.Address) {
		return nil, ErrInvalidEntry
	}
	in := e.clone()
	in.Address = validation.NormalizeAddress(in.Address)
	in.Category = strings.TrimSpace(in.Category)
	in.Source = strings.TrimSpace(in.Source)
	if in.Category == "" || in.Source == "" {
		return nil, ErrInvalidEntry
	}
	if in.Severity == "" {
		in.Severity = SeverityHigh
	}
	if !in.Severity.Valid() {
		return nil, ErrInvalidEntry
	}
	if in.ReportedAt.IsZero() {
		in.ReportedAt = i.now().UTC()
	}
	in.IsActive = true
	if err := i.store.Upsert(ctx, in); err != nil {
		return nil, err
	}
	return in, nil
}

// Remove retires the entry for address.
func (i *Index) Remove(ctx context.Context, address string) error {
	if !validation.IsValidAddress(address) {
		return ErrNotFound
	}
	return i.store.Retire(ctx, validation.NormalizeAddress(address))
}

// List returns entries ordered by report time, newest first.
func (i *Index) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return i.store.List(ctx, activeOnly, limit, offset)
}
