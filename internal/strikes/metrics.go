package strikes

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/riskgate/internal/metrics"
)

var (
	strikesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "strikes",
		Name:      "recorded_total",
		Help:      "Risk warnings recorded against users.",
	})

	suspensions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "strikes",
		Name:      "suspensions_total",
		Help:      "Accounts suspended by the strike limit.",
	})

	strikeConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "strikes",
		Name:      "conflicts_total",
		Help:      "Strike increments retried after a concurrent update.",
	})

	strikeResets = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "strikes",
		Name:      "resets_total",
		Help:      "Admin strike counter resets.",
	})
)

func init() {
	prometheus.MustRegister(strikesRecorded, suspensions, strikeConflicts, strikeResets)
}
