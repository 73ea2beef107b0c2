// Package syncutil provides per-key locking for stores that serialize
// updates by wallet address or user ID.
package syncutil

import (
	"context"
	"hash/fnv"
	"slices"
)

const shardCount = 256

// KeyMutex is a fixed pool of channel-based mutexes keyed by string.
// Memory stays bounded no matter how many keys are seen; keys that hash
// to the same shard simply contend with each other. Waiters give up when
// their context is done.
type KeyMutex struct {
	shards [shardCount]chan struct{}
}

// NewKeyMutex creates a KeyMutex with every shard unlocked.
func NewKeyMutex() *KeyMutex {
	m := &KeyMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{}
	}
	return m
}

// Lock acquires the shard for key. The returned func releases it.
func (m *KeyMutex) Lock(ctx context.Context, key string) (func(), error) {
	return m.LockAll(ctx, key)
}

// LockAll acquires the shards for every key in ascending shard order, so two
// callers locking overlapping key sets cannot deadlock. Keys that share a
// shard are locked once. On failure nothing is left held.
func (m *KeyMutex) LockAll(ctx context.Context, keys ...string) (func(), error) {
	idx := make([]uint32, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, shardOf(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	held := make([]uint32, 0, len(idx))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.shards[held[i]] <- struct{}{}
		}
	}

	for _, i := range idx {
		select {
		case <-m.shards[i]:
			held = append(held, i)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
