package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry(time.Second)
	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestRegistry_AllHealthy(t *testing.T) {
	r := NewRegistry(time.Second)
	r.RegisterPing("database", func(context.Context) error { return nil })
	r.Register("redis", func(context.Context) Status { return Status{Healthy: true} })

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Len(t, statuses, 2)
	assert.Equal(t, "database", statuses[0].Name)
	assert.Equal(t, "redis", statuses[1].Name)
}

func TestRegistry_OneUnhealthy(t *testing.T) {
	r := NewRegistry(time.Second)
	r.RegisterPing("database", func(context.Context) error { return nil })
	r.RegisterPing("nats", func(context.Context) error { return errors.New("disconnected") })

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.False(t, statuses[1].Healthy)
	assert.Equal(t, "disconnected", statuses[1].Detail)
}

func TestRegistry_CheckTimesOut(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.RegisterPing("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Contains(t, statuses[0].Detail, "deadline")
}
