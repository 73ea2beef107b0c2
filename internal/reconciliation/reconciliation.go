// Package reconciliation recomputes wallet aggregates from the ledger and
// reports wallets whose cached sent/received totals have drifted.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/mbd888/riskgate/internal/ledger"
)

// DefaultWorkers is the verification pool size when none is configured.
const DefaultWorkers = 8

// ErrAlreadyRunning is returned when a run is requested while another is in flight.
var ErrAlreadyRunning = errors.New("reconciliation: run already in progress")

// Verifier recomputes one wallet against the ledger.
type Verifier interface {
	VerifyWallet(ctx context.Context, address string) (*ledger.Verification, error)
}

// AddressLister enumerates every wallet known to the registry.
type AddressLister interface {
	ListAddresses(ctx context.Context) ([]string, error)
}

// Report summarizes one reconciliation run.
type Report struct {
	Checked    int                    `json:"checked"`
	Mismatches []*ledger.Verification `json:"mismatches"`
	Errors     int                    `json:"errors"`
	Healthy    bool                   `json:"healthy"`
	Duration   time.Duration          `json:"durationMs"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Runner verifies every wallet on a bounded worker pool.
type Runner struct {
	verifier Verifier
	lister   AddressLister
	workers  int
	logger   *slog.Logger

	running atomic.Bool
	mu      sync.RWMutex
	last    *Report
}

// NewRunner creates a runner. workers <= 0 selects DefaultWorkers.
func NewRunner(verifier Verifier, lister AddressLister, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		verifier: verifier,
		lister:   lister,
		workers:  workers,
		logger:   logger,
	}
}

// Last returns the most recent completed report, or nil.
func (r *Runner) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// RunAll verifies every wallet and records the mismatch gauge.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	start := time.Now()
	defer func() { reconcileDuration.Observe(time.Since(start).Seconds()) }()

	addrs, err := r.lister.ListAddresses(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	var (
		mu         sync.Mutex
		mismatches []*ledger.Verification
		failures   atomic.Int32
	)

	pool := pond.NewPool(r.workers, pond.WithContext(ctx))
	for _, addr := range addrs {
		pool.Submit(func() {
			v, err := r.verifier.VerifyWallet(ctx, addr)
			if err != nil {
				if errors.Is(err, ledger.ErrWalletNotFound) {
					return
				}
				failures.Add(1)
				reconcileErrors.Inc()
				r.logger.Warn("wallet verification failed", "address", addr, "error", err)
				return
			}
			if !v.Match {
				mu.Lock()
				mismatches = append(mismatches, v)
				mu.Unlock()
			}
		})
	}
	pool.StopAndWait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(mismatches, func(i, j int) bool {
		return mismatches[i].Address < mismatches[j].Address
	})
	if mismatches == nil {
		mismatches = []*ledger.Verification{}
	}

	report := &Report{
		Checked:    len(addrs),
		Mismatches: mismatches,
		Errors:     int(failures.Load()),
		Healthy:    len(mismatches) == 0 && failures.Load() == 0,
		Duration:   time.Since(start),
		Timestamp:  start.UTC(),
	}
	ledger.LedgerMismatches.Set(float64(len(mismatches)))
	reconcileRuns.Inc()

	for _, v := range mismatches {
		r.logger.Error("ledger aggregate mismatch",
			"address", v.Address,
			"cached_sent", v.CachedSent.String(),
			"derived_sent", v.DerivedSent.String(),
			"cached_received", v.CachedReceived.String(),
			"derived_received", v.DerivedReceived.String())
	}
	r.logger.Info("reconciliation complete",
		"checked", report.Checked,
		"mismatches", len(mismatches),
		"errors", report.Errors,
		"duration", report.Duration)

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()
	return report, nil
}
