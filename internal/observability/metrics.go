package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Metrics owns the API process registry and the warehouse collectors.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	scansTotal      *prometheus.CounterVec
	deltasTotal     *prometheus.CounterVec
	eventsDropped   prometheus.Counter
}

// NewMetrics builds a private registry with every collector registered.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests served, by chi route pattern and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request latency by chi route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_wms_scans_total",
		Help: "Scan log rows written, by scan type and status.",
	}, []string{"scan_type", "status"})
	deltas := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_wms_ledger_deltas_total",
		Help: "Ledger quantity deltas by direction and outcome.",
	}, []string{"direction", "outcome"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_wms_events_dropped_total",
		Help: "Warehouse events dropped because the notify queue was full.",
	})
	registry.MustRegister(requests, duration, scans, deltas, dropped)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		scansTotal:      scans,
		deltasTotal:     deltas,
		eventsDropped:   dropped,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency per route. Unmatched requests are
// labelled "unknown" to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer is where other packages attach their collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveScan counts one committed scan row.
func (m *Metrics) ObserveScan(scanType, status string) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(scanType, status).Inc()
}

// ObserveDelta counts one ledger delta attempt. Rejections that would drive
// stock negative are reported separately from other failures.
func (m *Metrics) ObserveDelta(delta int, err error) {
	if m == nil {
		return
	}
	direction := "in"
	if delta < 0 {
		direction = "out"
	}
	outcome := "applied"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrInvalidState):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	m.deltasTotal.WithLabelValues(direction, outcome).Inc()
}

// EventDropped counts one discarded notification.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
