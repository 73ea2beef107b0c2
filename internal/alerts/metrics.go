package alerts

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/riskgate/internal/metrics"
)

var (
	alertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerts",
		Name:      "raised_total",
		Help:      "Alerts raised by type and severity.",
	}, []string{"type", "severity"})

	alertErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerts",
		Name:      "errors_total",
		Help:      "Alert store and publish failures.",
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(alertsRaised, alertErrors)
}
