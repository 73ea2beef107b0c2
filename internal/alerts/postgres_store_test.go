//go:build integration

package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/riskgate/internal/testutil"
)

func TestPostgres_AlertLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := &Alert{
		ID: "11111111-1111-1111-1111-111111111111", WalletAddress: wallet,
		AlertType: TypeUserSuspended, Severity: SeverityHigh, Message: "suspended",
		RiskScore: Score(65), Metadata: map[string]any{"warningCount": float64(3)}, DetectedAt: now,
	}
	if err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := s.Get(ctx, a.ID)
	if err != nil || got.RiskScore == nil || *got.RiskScore != 65 || got.Metadata["warningCount"] != float64(3) {
		t.Fatalf("unexpected alert %+v %v", got, err)
	}

	list, err := s.List(ctx, Filter{Type: TypeUserSuspended, UnacknowledgedOnly: true, Limit: 10})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 open alert, got %d %v", len(list), err)
	}

	if _, err := s.Acknowledge(ctx, a.ID, "ops", now); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if _, err := s.Acknowledge(ctx, a.ID, "ops", now); !errors.Is(err, ErrAlreadyAcknowledged) {
		t.Errorf("expected ErrAlreadyAcknowledged, got %v", err)
	}
	if _, err := s.Acknowledge(ctx, "22222222-2222-2222-2222-222222222222", "ops", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	c, err := s.Counts(ctx, time.Time{})
	if err != nil || c.Total != 1 || c.Unacknowledged != 0 || c.Recent != 1 {
		t.Errorf("unexpected counts %+v %v", c, err)
	}
}
