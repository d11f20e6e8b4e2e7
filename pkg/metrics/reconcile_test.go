package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestReconcileMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewReconcileMetrics(reg)
	metrics.ObserveDuration("update", 120*time.Millisecond)
	metrics.IncSuccess("update")
	metrics.IncFailure("replace")
	metrics.AddRejected("update", "NOT_FOUND", 2)
	metrics.AddInvalidated(5)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "tierprice_batches_total", "operation", "update"); err != nil {
		t.Fatalf("fetch batches: %v", err)
	} else if got != 1 {
		t.Fatalf("expected batches=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "tierprice_rejected_records_total", "reason", "NOT_FOUND"); err != nil {
		t.Fatalf("fetch rejected: %v", err)
	} else if got != 2 {
		t.Fatalf("expected rejected=2, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "tierprice_batch_duration_seconds", "operation", "update"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestReconcileMetricsNilSafe(t *testing.T) {
	var metrics *ReconcileMetrics
	metrics.IncSuccess("update")
	metrics.AddRejected("update", "VALIDATION_ERROR", 1)
	metrics.AddInvalidated(1)

	empty := NewReconcileMetrics(nil)
	empty.ObserveDuration("delete", time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
