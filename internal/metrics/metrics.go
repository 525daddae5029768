// Package metrics exposes Prometheus instrumentation for the catalog API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Clark-Hu/movie-catalog/internal/store"
)

// Metrics owns a registry so that several servers can coexist in one process (tests).
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the HTTP collectors plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movies_http_requests_total",
				Help: "Total number of HTTP requests handled by the catalog API.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "movies_http_request_duration_seconds",
				Help:    "Catalog API request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterStore publishes connection pool gauges sampled at scrape time.
func (m *Metrics) RegisterStore(st *store.Store) {
	gauge := func(name, help string, value func(store.PoolStats) int64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        name,
				Help:        help,
				ConstLabels: prometheus.Labels{"driver": st.Driver()},
			},
			func() float64 { return float64(value(st.Stats())) },
		)
	}
	m.registry.MustRegister(
		gauge("movies_db_pool_acquired_connections", "Connections currently in use.",
			func(s store.PoolStats) int64 { return s.Acquired }),
		gauge("movies_db_pool_idle_connections", "Idle connections in the pool.",
			func(s store.PoolStats) int64 { return s.Idle }),
		gauge("movies_db_pool_total_connections", "Open connections in the pool.",
			func(s store.PoolStats) int64 { return s.Total }),
	)
}

// Middleware records request count and latency keyed by the chi route pattern,
// so /api/movies/{id} is one series no matter which id was requested.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
