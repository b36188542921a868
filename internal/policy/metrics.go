package policy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// decisionCounter counts decisions per (module, action) on the default
// Prometheus registry. The kernel records but never serves these; the
// embedding process decides whether to expose a /metrics endpoint.
var (
	decisionCounter *prometheus.CounterVec
	registerOnce    sync.Once
)

func decisionsTotal() *prometheus.CounterVec {
	registerOnce.Do(func() {
		decisionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radius_module_decisions_total",
			Help: "Count of policy module decisions by module and action.",
		}, []string{"module", "action"})
		_ = prometheus.Register(decisionCounter)
	})
	return decisionCounter
}

func recordDecision(module string, action Action) {
	decisionsTotal().WithLabelValues(module, string(action)).Inc()
}
