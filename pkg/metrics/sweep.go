package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics records the outcome of lifecycle sweep cycles.
type SweepMetrics struct {
	duration *prometheus.HistogramVec
	moved    *prometheus.CounterVec
	failures *prometheus.CounterVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewSweepMetrics registers the sweep metrics on the provided registerer.
// A nil registerer yields a no-op collector, which tests rely on.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of sweep jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	moved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_packages_moved",
		Help: "Packages advanced by sweep jobs.",
	}, []string{"job"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_item_failures",
		Help: "Per-package failures collected during sweeps.",
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_success",
		Help: "Successful sweep job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_failure",
		Help: "Failed sweep job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, moved, failures, success, failure)
	return &SweepMetrics{
		duration: duration,
		moved:    moved,
		failures: failures,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records the duration for the named job.
func (m *SweepMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// AddMoved counts packages advanced in one cycle.
func (m *SweepMetrics) AddMoved(job string, count int) {
	if m == nil || m.moved == nil || count <= 0 {
		return
	}
	m.moved.WithLabelValues(normalizeLabel(job)).Add(float64(count))
}

// AddItemFailures counts per-package failures collected in one cycle.
func (m *SweepMetrics) AddItemFailures(job string, count int) {
	if m == nil || m.failures == nil || count <= 0 {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(job)).Add(float64(count))
}

// IncSuccess increments the success counter for the named job.
func (m *SweepMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (m *SweepMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
