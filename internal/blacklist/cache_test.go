package blacklist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type countingStore struct {
	*MemoryStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, address string) (*Entry, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, address)
}

func TestCachedStore_ReadThrough(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cache := newFakeCache()
	cached := NewCachedStore(backing, cache, time.Minute, nil)
	idx := NewIndex(cached)
	ctx := context.Background()

	_, err := idx.Add(ctx, &Entry{Address: scammer, Category: "scam", Source: "feed", Severity: SeverityCritical})
	require.NoError(t, err)

	hits := testutil.ToFloat64(cacheHits)

	for i := 0; i < 3; i++ {
		listed, sev, err := idx.IsBlacklisted(ctx, scammer)
		require.NoError(t, err)
		assert.True(t, listed)
		assert.Equal(t, SeverityCritical, sev)
	}
	assert.Equal(t, 1, backing.gets, "only the first lookup should reach the store")
	assert.Equal(t, 2.0, testutil.ToFloat64(cacheHits)-hits)
	assert.Equal(t, time.Minute, cache.ttls[scammer])
}

func TestCachedStore_AbsentAddressesNotCached(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cache := newFakeCache()
	idx := NewIndex(NewCachedStore(backing, cache, time.Minute, nil))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		listed, _, err := idx.IsBlacklisted(ctx, clean)
		require.NoError(t, err)
		assert.False(t, listed)
	}
	assert.Equal(t, 3, backing.gets)
	assert.Empty(t, cache.data)
}

// Entries written by an external governance process bypass the cache
// entirely; the next lookup must still see them.
func TestCachedStore_SeesEntriesWrittenBehindCache(t *testing.T) {
	backing := NewMemoryStore()
	idx := NewIndex(NewCachedStore(backing, newFakeCache(), time.Minute, nil))
	ctx := context.Background()

	listed, _, err := idx.IsBlacklisted(ctx, scammer)
	require.NoError(t, err)
	require.False(t, listed)

	require.NoError(t, backing.Upsert(ctx, &Entry{Address: scammer, Category: "scam", Source: "feed", Severity: SeverityCritical, IsActive: true}))

	listed, sev, err := idx.IsBlacklisted(ctx, scammer)
	require.NoError(t, err)
	assert.True(t, listed)
	assert.Equal(t, SeverityCritical, sev)
}

func TestCachedStore_WritesEvict(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	idx := NewIndex(NewCachedStore(backing, newFakeCache(), time.Minute, nil))
	ctx := context.Background()

	listed, _, _ := idx.IsBlacklisted(ctx, scammer)
	require.False(t, listed)

	_, err := idx.Add(ctx, &Entry{Address: scammer, Category: "scam", Source: "feed"})
	require.NoError(t, err)
	listed, _, _ = idx.IsBlacklisted(ctx, scammer)
	assert.True(t, listed)

	require.NoError(t, idx.Remove(ctx, scammer))
	listed, _, _ = idx.IsBlacklisted(ctx, scammer)
	assert.False(t, listed, "retire must evict the cached entry")
}

func TestCachedStore_CacheFailureFallsBack(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	idx := NewIndex(NewCachedStore(backing, cache, time.Minute, nil))
	ctx := context.Background()

	_, err := idx.Add(ctx, &Entry{Address: scammer, Category: "scam", Source: "feed"})
	require.NoError(t, err)

	listed, _, err := idx.IsBlacklisted(ctx, scammer)
	require.NoError(t, err)
	assert.True(t, listed)
	assert.Equal(t, 1, backing.gets)
}

func TestCachedStore_ExpiryCheckedOnCachedEntries(t *testing.T) {
	idx := NewIndex(NewCachedStore(NewMemoryStore(), newFakeCache(), time.Hour, nil))
	ctx := context.Background()
	now := time.Now()
	idx.now = func() time.Time { return now }

	expires := now.Add(time.Minute)
	_, err := idx.Add(ctx, &Entry{Address: scammer, Category: "scam", Source: "feed", ExpiresAt: &expires})
	require.NoError(t, err)

	listed, _, _ := idx.IsBlacklisted(ctx, scammer)
	require.True(t, listed)

	now = now.Add(2 * time.Minute)
	listed, _, _ = idx.IsBlacklisted(ctx, scammer)
	assert.False(t, listed, "a cached entry must still honor its expiry")
}
