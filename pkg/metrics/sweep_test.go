package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, registry *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelValue(metric, "job") == job {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestSweepMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSweepMetrics(registry)

	m.AddMoved("package-sweep", 3)
	m.AddMoved("package-sweep", 2)
	m.AddItemFailures("package-sweep", 1)
	m.IncSuccess("package-sweep")
	m.IncSuccess("package-sweep")
	m.IncFailure("package-sweep")

	if got := counterValue(t, registry, "sweep_packages_moved", "package-sweep"); got != 5 {
		t.Fatalf("moved = %v", got)
	}
	if got := counterValue(t, registry, "sweep_item_failures", "package-sweep"); got != 1 {
		t.Fatalf("item failures = %v", got)
	}
	if got := counterValue(t, registry, "sweep_success", "package-sweep"); got != 2 {
		t.Fatalf("success = %v", got)
	}
	if got := counterValue(t, registry, "sweep_failure", "package-sweep"); got != 1 {
		t.Fatalf("failure = %v", got)
	}
}

func TestSweepMetrics_ObserveDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSweepMetrics(registry)

	m.ObserveDuration("package-sweep", 250*time.Millisecond)
	m.ObserveDuration("package-sweep", 750*time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "sweep_duration_seconds" {
			continue
		}
		histogram := family.GetMetric()[0].GetHistogram()
		if histogram.GetSampleCount() != 2 {
			t.Fatalf("sample count = %d", histogram.GetSampleCount())
		}
		if got := histogram.GetSampleSum(); got < 0.99 || got > 1.01 {
			t.Fatalf("sample sum = %v", got)
		}
		return
	}
	t.Fatal("sweep_duration_seconds not gathered")
}

func TestSweepMetrics_NonPositiveCountsIgnored(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSweepMetrics(registry)

	m.AddMoved("package-sweep", 0)
	m.AddItemFailures("package-sweep", -1)

	if got := counterValue(t, registry, "sweep_packages_moved", "package-sweep"); got != 0 {
		t.Fatalf("moved = %v", got)
	}
}

func TestSweepMetrics_EmptyJobLabelNormalized(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSweepMetrics(registry)

	m.IncSuccess("")
	if got := counterValue(t, registry, "sweep_success", "unknown"); got != 1 {
		t.Fatalf("success = %v", got)
	}
}

func TestSweepMetrics_NilSafe(t *testing.T) {
	var m *SweepMetrics
	m.ObserveDuration("package-sweep", time.Second)
	m.AddMoved("package-sweep", 1)
	m.IncSuccess("package-sweep")
	m.IncFailure("package-sweep")

	noop := NewSweepMetrics(nil)
	noop.AddItemFailures("package-sweep", 1)
}
