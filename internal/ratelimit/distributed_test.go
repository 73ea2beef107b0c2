//go:build integration

package ratelimit

import (
	"context"
	"testing"

	"github.com/mbd888/riskgate/internal/testutil"
)

func TestDistributed_SharedBudget(t *testing.T) {
	client, cleanup := testutil.RedisTest(t)
	defer cleanup()

	cfg := Config{RequestsPerMinute: 60, BurstSize: 3}
	// Two limiters stand in for two replicas sharing one Redis.
	a := NewDistributed(client, cfg, nil, nil)
	b := NewDistributed(client, cfg, nil, nil)
	ctx := context.Background()
	key := "shared-" + t.Name()

	allowed := 0
	for i := 0; i < 3; i++ {
		if ok, _ := a.AllowN(ctx, key); ok {
			allowed++
		}
		if ok, _ := b.AllowN(ctx, key); ok {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("expected burst of 3 shared across replicas, got %d", allowed)
	}

	ok, retry := a.AllowN(ctx, key)
	if ok || retry <= 0 {
		t.Errorf("expected denial with retry-after, got ok=%v retry=%v", ok, retry)
	}
}
