package metrics

import "github.com/prometheus/client_golang/prometheus"

// EditLogMetrics holds Prometheus metrics for the buffered edit log.
type EditLogMetrics struct {
	BufferedRecords     prometheus.Gauge
	PendingBatches      prometheus.Gauge
	FlushesTotal        *prometheus.CounterVec
	FlushDuration       prometheus.Histogram
	DroppedRecordsTotal *prometheus.CounterVec
}

// NewEditLogMetrics creates and registers edit log metrics on the given registry.
func NewEditLogMetrics(reg prometheus.Registerer) *EditLogMetrics {
	m := &EditLogMetrics{
		BufferedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "editlog",
			Name:      "buffered_records",
			Help:      "Number of edit records waiting to fill a batch.",
		}),
		PendingBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "editlog",
			Name:      "pending_batches",
			Help:      "Number of full batches waiting to be persisted.",
		}),
		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editlog",
			Name:      "flushes_total",
			Help:      "Total number of batch persistence attempts, by status (success, error).",
		}, []string{"status"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "editlog",
			Name:      "flush_duration_seconds",
			Help:      "Duration of successful batch appends in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		DroppedRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editlog",
			Name:      "dropped_records_total",
			Help:      "Total number of edit records discarded without being persisted, by reason (overflow, permanent, shutdown).",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.BufferedRecords, m.PendingBatches, m.FlushesTotal, m.FlushDuration, m.DroppedRecordsTotal)
	return m
}
