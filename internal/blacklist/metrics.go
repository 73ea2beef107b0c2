package blacklist

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/riskgate/internal/metrics"
)

var (
	lookupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blacklist",
		Name:      "lookup_duration_seconds",
		Help:      "Blacklist lookup latency in seconds.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	lookupHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blacklist",
		Name:      "matches_total",
		Help:      "Lookups that matched an active entry.",
	})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blacklist",
		Name:      "cache_hits_total",
		Help:      "Blacklist lookups served from cache.",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blacklist",
		Name:      "cache_misses_total",
		Help:      "Blacklist lookups that fell through to the store.",
	})

	cacheErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blacklist",
		Name:      "cache_errors_total",
		Help:      "Blacklist cache read, write and evict failures.",
	})
)

func init() {
	prometheus.MustRegister(lookupDuration, lookupHits, cacheHits, cacheMisses, cacheErrors)
}

func observeLookup() func() {
	start := time.Now()
	return func() { lookupDuration.Observe(time.Since(start).Seconds()) }
}
