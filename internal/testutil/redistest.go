package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// RedisTest returns a client for a flushed test Redis. REDIS_TEST_ADDR
// selects an existing server; otherwise a redis container is started once
// per test binary.
func RedisTest(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		if os.Getenv("SKIP_PG_CONTAINER") != "" {
			t.Skip("REDIS_TEST_ADDR not set and containers disabled, skipping integration test")
		}
		redisOnce.Do(func() {
			ctx := context.Background()
			c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
				ContainerRequest: testcontainers.ContainerRequest{
					Image:        "redis:7-alpine",
					ExposedPorts: []string{"6379/tcp"},
					WaitingFor:   wait.ForListeningPort("6379/tcp"),
				},
				Started: true,
			})
			if err != nil {
				redisErr = err
				return
			}
			redisAddr, redisErr = c.Endpoint(ctx, "")
		})
		if redisErr != nil {
			t.Skipf("redistest: redis container unavailable: %v", redisErr)
		}
		addr = redisAddr
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("redistest: ping: %v", err)
	}
	_ = client.FlushDB(ctx).Err()

	return client, func() {
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	}
}
