package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces limiter keys in Redis.
const DefaultKeyPrefix = "riskgate:ratelimit:"

// Distributed shares one budget per client across every replica through
// Redis (GCRA via redis_rate). When Redis errors it falls back to the
// in-process limiter so an outage never blocks traffic outright.
type Distributed struct {
	limiter  *redis_rate.Limiter
	limit    redis_rate.Limit
	fallback *Limiter
	prefix   string
	logger   *slog.Logger
}

// NewDistributed creates a Redis-backed limiter using cfg's rate and burst.
func NewDistributed(rdb *redis.Client, cfg Config, fallback *Limiter, logger *slog.Logger) *Distributed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributed{
		limiter: redis_rate.NewLimiter(rdb),
		limit: redis_rate.Limit{
			Rate:   max(cfg.RequestsPerMinute, 1),
			Burst:  max(cfg.BurstSize, 1),
			Period: time.Minute,
		},
		fallback: fallback,
		prefix:   DefaultKeyPrefix,
		logger:   logger,
	}
}

// AllowN implements Allower.
func (d *Distributed) AllowN(ctx context.Context, key string) (bool, time.Duration) {
	res, err := d.limiter.Allow(ctx, d.prefix+key, d.limit)
	if err != nil {
		redisFallbacks.Inc()
		d.logger.Warn("redis rate limiter error, falling back to local", "error", err)
		if d.fallback == nil {
			return true, 0
		}
		return d.fallback.AllowN(ctx, key)
	}
	if res.Allowed == 0 {
		return false, res.RetryAfter
	}
	return true, 0
}
