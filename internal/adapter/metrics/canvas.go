package metrics

import "github.com/prometheus/client_golang/prometheus"

// CanvasMetrics holds Prometheus metrics for edit command handling.
type CanvasMetrics struct {
	EditsTotal *prometheus.CounterVec
}

// NewCanvasMetrics creates and registers canvas metrics on the given registry.
func NewCanvasMetrics(reg prometheus.Registerer) *CanvasMetrics {
	m := &CanvasMetrics{
		EditsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "canvas",
			Name:      "edits_total",
			Help:      "Total number of edit commands, by result (accepted, cooldown, out_of_range, malformed, error).",
		}, []string{"result"}),
	}

	reg.MustRegister(m.EditsTotal)
	return m
}
