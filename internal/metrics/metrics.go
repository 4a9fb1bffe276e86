// Package metrics exposes Prometheus collectors for the HTTP API and for
// calls to the generative content service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry     *prometheus.Registry
	generations  *prometheus.CounterVec
	genDuration  *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "startopia",
			Name:      "generations_total",
			Help:      "Generation requests by artifact and outcome.",
		}, []string{"artifact", "outcome"}),
		genDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "startopia",
			Name:      "generation_duration_seconds",
			Help:      "Latency of generation requests, including validation and persistence.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"artifact"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "startopia",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "startopia",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.generations, m.genDuration, m.httpRequests, m.httpDuration)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGeneration records one generation attempt. The outcome label is
// supplied by the caller so this package stays independent of the error
// taxonomy.
func (m *Metrics) ObserveGeneration(artifact, outcome string, took time.Duration) {
	m.generations.WithLabelValues(artifact, outcome).Inc()
	m.genDuration.WithLabelValues(artifact).Observe(took.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by the ServeMux pattern that handled them.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
