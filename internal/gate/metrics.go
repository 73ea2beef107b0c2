package gate

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/riskgate/internal/metrics"
)

var (
	decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Transfer decisions by status.",
	}, []string{"status"})

	decisionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "gate",
		Name:      "decision_duration_seconds",
		Help:      "Time from request to decision, by status.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"status"})

	blockReasons = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "gate",
		Name:      "blocks_total",
		Help:      "Blocked transfers by reason.",
	}, []string{"reason"})

	rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "gate",
		Name:      "rejections_total",
		Help:      "Requests rejected by validation, by reason.",
	}, []string{"reason"})

	gateErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "gate",
		Name:      "errors_total",
		Help:      "Requests that failed with a transient or storage error.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(decisions, decisionDuration, blockReasons, rejections, gateErrors)
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidHash):
		return "invalid_hash"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrSenderRestricted):
		return "sender_restricted"
	case errors.Is(err, ErrHashConflict):
		return "hash_conflict"
	default:
		return "other"
	}
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "storage"
	}
}
