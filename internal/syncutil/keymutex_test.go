package syncutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyMutex_MutualExclusion(t *testing.T) {
	m := NewKeyMutex()
	ctx := context.Background()

	var counter int64
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "0xsender")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			defer unlock()
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&counter); got != n {
		t.Fatalf("expected %d, got %d", n, got)
	}
}

func TestKeyMutex_ContextCancelled(t *testing.T) {
	m := NewKeyMutex()

	unlock, err := m.Lock(context.Background(), "busy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := m.Lock(ctx, "busy"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestKeyMutex_LockAllSameShardDoesNotDeadlock(t *testing.T) {
	m := NewKeyMutex()

	// Find two distinct keys that land on the same shard.
	a := "key-0"
	var b string
	for i := 1; ; i++ {
		k := fmt.Sprintf("key-%d", i)
		if shardOf(k) == shardOf(a) {
			b = k
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlock, err := m.LockAll(ctx, a, b, a)
	if err != nil {
		t.Fatalf("LockAll on shared shard failed: %v", err)
	}
	unlock()

	// Shard must be free again.
	unlock, err = m.Lock(ctx, b)
	if err != nil {
		t.Fatalf("shard not released: %v", err)
	}
	unlock()
}

func TestKeyMutex_LockAllOppositeOrder(t *testing.T) {
	m := NewKeyMutex()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if unlock, err := m.LockAll(ctx, "0xaaa", "0xbbb"); err == nil {
				unlock()
			} else {
				t.Errorf("lock a,b: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if unlock, err := m.LockAll(ctx, "0xbbb", "0xaaa"); err == nil {
				unlock()
			} else {
				t.Errorf("lock b,a: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestKeyMutex_PartialAcquireReleasedOnCancel(t *testing.T) {
	m := NewKeyMutex()

	first, second := "x", "y"
	if shardOf(first) > shardOf(second) {
		first, second = second, first
	}
	if shardOf(first) == shardOf(second) {
		t.Skip("keys share a shard")
	}

	unlock, _ := m.Lock(context.Background(), second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := m.LockAll(ctx, first, second); err == nil {
		t.Fatal("expected timeout")
	}
	unlock()

	// first shard must not be leaked.
	u, err := m.Lock(context.Background(), first)
	if err != nil {
		t.Fatalf("first shard leaked: %v", err)
	}
	u()
}
