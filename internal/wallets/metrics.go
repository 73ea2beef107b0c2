package wallets

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/riskgate/internal/metrics"
)

var statusChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "wallets",
	Name:      "status_changes_total",
	Help:      "Admin wallet status changes by new status.",
}, []string{"status"})

func init() {
	prometheus.MustRegister(statusChanges)
}
