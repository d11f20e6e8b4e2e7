package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics records batch reconciliation outcomes.
type ReconcileMetrics struct {
	duration    *prometheus.HistogramVec
	batches     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	invalidated prometheus.Counter
}

// NewReconcileMetrics registers the reconciliation metrics on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tierprice_batch_duration_seconds",
		Help:    "Duration of tier price batch operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tierprice_batches_total",
		Help: "Completed tier price batch operations.",
	}, []string{"operation", "outcome"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tierprice_rejected_records_total",
		Help: "Records rejected during batch validation.",
	}, []string{"operation", "reason"})
	invalidated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tierprice_invalidated_products_total",
		Help: "Product identifiers submitted for price re-indexing.",
	})
	reg.MustRegister(duration, batches, rejected, invalidated)
	return &ReconcileMetrics{
		duration:    duration,
		batches:     batches,
		rejected:    rejected,
		invalidated: invalidated,
	}
}

// ObserveDuration records the wall time for the named operation.
func (m *ReconcileMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess counts a completed batch for the named operation.
func (m *ReconcileMetrics) IncSuccess(operation string) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(normalizeLabel(operation), "success").Inc()
}

// IncFailure counts an aborted batch for the named operation.
func (m *ReconcileMetrics) IncFailure(operation string) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(normalizeLabel(operation), "failure").Inc()
}

// AddRejected counts validation rejections by reason code.
func (m *ReconcileMetrics) AddRejected(operation, reason string, count int) {
	if m == nil || m.rejected == nil || count <= 0 {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(operation), normalizeLabel(reason)).Add(float64(count))
}

// AddInvalidated counts product identifiers sent for re-indexing.
func (m *ReconcileMetrics) AddInvalidated(count int) {
	if m == nil || m.invalidated == nil || count <= 0 {
		return
	}
	m.invalidated.Add(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
