//go:build integration

package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/riskgate/internal/testutil"
)

func TestPostgres_UpsertGetRetire(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	idx := NewIndex(NewPostgresStore(db))
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).UTC()
	if _, err := idx.Add(ctx, &Entry{Address: scammer, Category: "scam", Source: "feed", Severity: SeverityCritical, ExpiresAt: &expires}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	listed, sev, err := idx.IsBlacklisted(ctx, scammer)
	if err != nil || !listed || sev != SeverityCritical {
		t.Fatalf("expected CRITICAL listing, got %v %s %v", listed, sev, err)
	}

	// Upsert replaces the previous entry.
	if _, err := idx.Add(ctx, &Entry{Address: scammer, Category: "phishing", Source: "feed", Severity: SeverityMedium}); err != nil {
		t.Fatalf("re-Add failed: %v", err)
	}
	e, err := idx.Lookup(ctx, scammer)
	if err != nil || e.Category != "phishing" || e.ExpiresAt != nil {
		t.Fatalf("expected replaced entry, got %+v %v", e, err)
	}

	if err := idx.Remove(ctx, scammer); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if listed, _, _ := idx.IsBlacklisted(ctx, scammer); listed {
		t.Error("retired entry should not match")
	}
	if err := idx.Remove(ctx, clean); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := idx.List(ctx, false, 10, 0)
	if err != nil || len(all) != 1 {
		t.Errorf("expected 1 entry in full list, got %d %v", len(all), err)
	}
}
