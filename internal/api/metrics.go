package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/cdl-core/internal/experiment"
)

const metricsNamespace = "cdl"

// Metrics holds the Prometheus collectors of one server. It also implements
// experiment.Metrics and result.Metrics so the domain services can share it.
type Metrics struct {
	registry *prometheus.Registry

	// HTTPRequests counts requests by method, route pattern and status code.
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration observes request latency by method and route pattern.
	HTTPDuration *prometheus.HistogramVec

	// ExperimentsCreated counts accepted submissions.
	ExperimentsCreated prometheus.Counter

	// StatusTransitions counts status changes. Labels: from, to.
	StatusTransitions *prometheus.CounterVec

	// ResultsRecorded counts ingested results.
	ResultsRecorded prometheus.Counter

	// WSClients tracks connected WebSocket clients.
	WSClients prometheus.Gauge
}

// NewMetrics registers all collectors on reg. A nil reg gets a fresh
// registry, which keeps parallel tests isolated from each other.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ExperimentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "experiments_created_total",
			Help:      "Experiments accepted into the queue.",
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "experiment_status_transitions_total",
			Help:      "Experiment status changes by previous and new status.",
		}, []string{"from", "to"}),
		ResultsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "results_recorded_total",
			Help:      "Experiment results recorded.",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected WebSocket clients.",
		}),
	}
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ExperimentCreated implements experiment.Metrics.
func (m *Metrics) ExperimentCreated() {
	m.ExperimentsCreated.Inc()
}

// StatusTransition implements experiment.Metrics.
func (m *Metrics) StatusTransition(from, to experiment.Status) {
	m.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// ResultRecorded implements result.Metrics.
func (m *Metrics) ResultRecorded() {
	m.ResultsRecorded.Inc()
}

// metricsMiddleware records request count and latency by chi route pattern,
// so path parameters do not explode label cardinality.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapStatus(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
