package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mbd888/riskgate/internal/wei"
)

// Concurrent debits from one sender must never drive its derived balance
// below zero, and exactly floor(balance/amount) of them may succeed.
func TestConcurrentDebits_NoOverdraw(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	fund(t, l, alice, 10)

	const workers = 50
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Commit(ctx, &Transfer{From: alice, To: bob, Value: wei.Ether(1)})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrInsufficientBalance):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 10 {
		t.Errorf("expected exactly 10 successful debits, got %d", succeeded.Load())
	}
	if rejected.Load() != workers-10 {
		t.Errorf("expected %d rejections, got %d", workers-10, rejected.Load())
	}
	bal, _ := l.Balance(ctx, alice)
	if bal.Sign() != 0 {
		t.Errorf("expected zero balance, got %s", bal)
	}
}

// Two senders paying each other concurrently lock the same pair of
// addresses in opposite argument order; LockAll must not deadlock.
func TestConcurrentCrossTransfers_NoDeadlock(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	fund(t, l, alice, 100)
	fund(t, l, bob, 100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := l.Commit(ctx, &Transfer{From: alice, To: bob, Value: big.NewInt(1)}); err != nil {
				t.Errorf("alice->bob: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := l.Commit(ctx, &Transfer{From: bob, To: alice, Value: big.NewInt(1)}); err != nil {
				t.Errorf("bob->alice: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := l.Balance(ctx, alice)
	b, _ := l.Balance(ctx, bob)
	if a.Cmp(wei.Ether(100)) != 0 || b.Cmp(wei.Ether(100)) != 0 {
		t.Errorf("balances drifted: alice=%s bob=%s", a, b)
	}
	for _, addr := range []string{alice, bob} {
		v, err := l.VerifyWallet(ctx, addr)
		if err != nil || !v.Match {
			t.Errorf("aggregates for %s do not match ledger: %+v %v", addr, v, err)
		}
	}
}

// The same hash submitted concurrently is recorded once.
func TestConcurrentSameHash_RecordedOnce(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	fund(t, l, alice, 10)

	tr := &Transfer{Hash: hashN(7), From: alice, To: bob, Value: wei.Ether(1)}
	var (
		wg         sync.WaitGroup
		fresh      atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Commit(ctx, tr)
			if err != nil {
				t.Errorf("commit: %v", err)
				return
			}
			if res.Duplicate {
				duplicates.Add(1)
			} else {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	if fresh.Load() != 1 || duplicates.Load() != 19 {
		t.Errorf("expected 1 fresh commit and 19 duplicates, got %d/%d", fresh.Load(), duplicates.Load())
	}
	bal, _ := l.Balance(ctx, bob)
	if bal.Cmp(wei.Ether(1)) != 0 {
		t.Errorf("receiver credited more than once: %s", bal)
	}
}

func TestCommit_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	l := New(store)
	fund(t, l, alice, 1)

	unlock, err := store.locks.Lock(context.Background(), alice)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Commit(ctx, &Transfer{From: alice, To: bob, Value: big.NewInt(1)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while the sender is locked, got %v", err)
	}
}

// VerifyWallet must never report drift caused by a commit landing between
// reading the wallet row and summing the ledger.
func TestVerifyWallet_ConsistentUnderConcurrentCommits(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	fund(t, l, alice, 1000)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := l.Commit(ctx, &Transfer{From: alice, To: bob, Value: big.NewInt(1)}); err != nil {
				t.Errorf("commit: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		for _, addr := range []string{alice, bob} {
			v, err := l.VerifyWallet(ctx, addr)
			if errors.Is(err, ErrWalletNotFound) {
				continue
			}
			if err != nil {
				close(stop)
				wg.Wait()
				t.Fatalf("VerifyWallet(%s): %v", addr, err)
			}
			if !v.Match {
				close(stop)
				wg.Wait()
				t.Fatalf("false mismatch on %s: %+v", addr, v)
			}
		}
	}
	close(stop)
	wg.Wait()
}
