// Package jobmetrics instruments the warehouse background jobs.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded under the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusSkipped marks runs that returned asynq.SkipRetry, i.e. a payload
	// that will never succeed.
	StatusSkipped = "skipped"
)

// Metrics holds the job collectors.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors. A nil registerer means the default
// Prometheus registerer, registered once per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job. Safe on a nil receiver.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := outcome(err)
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if status == StatusSuccess {
		t.metrics.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}

// AddItems counts units of work a job handled, such as events fanned out or
// expired idempotency keys removed.
func (m *Metrics) AddItems(job, kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.items.WithLabelValues(job, kind).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_wms_job_runs_total",
			Help: "Warehouse job runs by job and status (success, failure, skipped).",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_wms_job_duration_seconds",
			Help:    "Duration of warehouse job runs.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_wms_job_items_total",
			Help: "Units of work handled by warehouse jobs, by job and kind.",
		}, []string{"job", "kind"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_wms_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.items, m.lastSuccess)
	return m
}
