// Package jobmetrics exposes Prometheus collectors for background jobs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by all background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	mismatches prometheus.Counter
	reorders   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors against the provided registerer.
// A nil registerer uses the Prometheus default and returns a process-wide
// singleton so repeated calls never double-register.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records duration and success/failure for the run and returns the
// provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddLedgerMismatches counts items whose replayed ledger disagreed with the
// stored balance.
func (m *Metrics) AddLedgerMismatches(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.mismatches.Add(float64(count))
}

// AddReorderAlerts counts items flagged at or below their reorder point.
func (m *Metrics) AddReorderAlerts(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reorders.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loomline_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loomline_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loomline_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loomline_ledger_mismatches_total",
		Help: "Items whose stock movement replay disagreed with the stored balance.",
	})
	reorders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loomline_reorder_alerts_total",
		Help: "Items flagged at or below their reorder point.",
	})
	registerer.MustRegister(runs, failures, duration, mismatches, reorders)
	return &Metrics{runs: runs, failures: failures, duration: duration, mismatches: mismatches, reorders: reorders}
}
