package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/riskgate/internal/metrics"
)

var (
	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by backend.",
	}, []string{"backend"})

	redisFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "rate_limit_redis_fallbacks_total",
		Help:      "Rate limit checks served locally because Redis failed.",
	})
)

func init() {
	prometheus.MustRegister(rateLimited, redisFallbacks)
}
