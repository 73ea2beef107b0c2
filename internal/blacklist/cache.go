package blacklist

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the small key/value surface CachedStore needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache stores values under "namespace:key".
type RedisCache struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisCache wraps a single-node or cluster client.
func NewRedisCache(client redis.UniversalClient, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace}
}

func (c *RedisCache) key(k string) string { return c.namespace + ":" + k }

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// CachedStore is a read-through cache in front of another Store. Only
// listed entries are cached: rows inserted straight into the backing store
// must be seen by the next lookup, so absent addresses always read through.
// Writes go to the backing store first and then evict. Cache failures
// degrade to direct store reads.
type CachedStore struct {
	Store
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps store with cache. Entries live for ttl.
func NewCachedStore(store Store, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{Store: store, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedStore) Get(ctx context.Context, address string) (*Entry, error) {
	raw, err := c.cache.Get(ctx, address)
	switch {
	case err == nil:
		var e Entry
		if jerr := json.Unmarshal([]byte(raw), &e); jerr == nil {
			cacheHits.Inc()
			return &e, nil
		}
		c.logger.Warn("discarding corrupt blacklist cache value", "address", address)
	case !errors.Is(err, ErrCacheMiss):
		cacheErrors.Inc()
		c.logger.Warn("blacklist cache read failed", "address", address, "error", err)
	}
	cacheMisses.Inc()

	e, err := c.Store.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(e); jerr == nil {
		c.put(ctx, address, string(b))
	}
	return e, nil
}

func (c *CachedStore) put(ctx context.Context, address, value string) {
	if err := c.cache.Set(ctx, address, value, c.ttl); err != nil {
		cacheErrors.Inc()
		c.logger.Warn("blacklist cache write failed", "address", address, "error", err)
	}
}

func (c *CachedStore) evict(ctx context.Context, address string) {
	if err := c.cache.Delete(ctx, address); err != nil {
		cacheErrors.Inc()
		c.logger.Warn("blacklist cache evict failed", "address", address, "error", err)
	}
}

func (c *CachedStore) Upsert(ctx context.Context, e *Entry) error {
	if err := c.Store.Upsert(ctx, e); err != nil {
		return err
	}
	c.evict(ctx, e.Address)
	return nil
}

func (c *CachedStore) Retire(ctx context.Context, address string) error {
	if err := c.Store.Retire(ctx, address); err != nil {
		return err
	}
	c.evict(ctx, address)
	return nil
}
