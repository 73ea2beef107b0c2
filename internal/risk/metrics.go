package risk

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/riskgate/internal/metrics"
)

var (
	evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "risk",
		Name:      "evaluations_total",
		Help:      "Recipient evaluations by resulting level.",
	}, []string{"level"})

	scoresIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "risk",
		Name:      "scores_ingested_total",
		Help:      "Scores accepted from the external scoring model.",
	})
)

func init() {
	prometheus.MustRegister(evaluations, scoresIngested)
}
