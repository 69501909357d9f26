// Package metrics exposes Prometheus collectors for the HTTP layer and the
// swap workflow.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rewear"

// Metrics owns a registry and the collectors registered in it.
type Metrics struct {
	Registry *prometheus.Registry
	Swaps    *Swaps

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// Swaps counts swap workflow outcomes. A nil *Swaps records nothing.
type Swaps struct {
	created   prometheus.Counter
	responded *prometheus.CounterVec
	cancelled prometheus.Counter
	failures  *prometheus.CounterVec
	points    prometheus.Counter
}

// New creates a registry with HTTP, swap, process and Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
		Swaps: &Swaps{
			created: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "swaps",
				Name:      "created_total",
				Help:      "Swap requests created.",
			}),
			responded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "swaps",
				Name:      "responses_total",
				Help:      "Swap requests answered by the item owner.",
			}, []string{"decision"}),
			cancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "swaps",
				Name:      "cancelled_total",
				Help:      "Swap requests cancelled by their requester.",
			}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "swaps",
				Name:      "failures_total",
				Help:      "Swap operations rejected, by operation and reason.",
			}, []string{"op", "reason"}),
			points: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "swaps",
				Name:      "points_transferred_total",
				Help:      "Points moved between users by accepted swaps.",
			}),
		},
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.Swaps.created,
		m.Swaps.responded,
		m.Swaps.cancelled,
		m.Swaps.failures,
		m.Swaps.points,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with request count, latency and in-flight
// collection. Paths are labelled by the matched route pattern.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routeLabel(r)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// routeLabel keeps label cardinality bounded: IDs in the raw path would
// create a series per resource.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	// Patterns carry the method ("GET /api/items/{id}"); it is labelled separately.
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// Created records a new swap request.
func (s *Swaps) Created() {
	if s == nil {
		return
	}
	s.created.Inc()
}

// Responded records an owner decision and, for points swaps, the amount moved.
func (s *Swaps) Responded(decision string, points int) {
	if s == nil {
		return
	}
	s.responded.WithLabelValues(decision).Inc()
	if points > 0 {
		s.points.Add(float64(points))
	}
}

// Cancelled records a cancellation.
func (s *Swaps) Cancelled() {
	if s == nil {
		return
	}
	s.cancelled.Inc()
}

// Failed records a rejected operation.
func (s *Swaps) Failed(op, reason string) {
	if s == nil {
		return
	}
	s.failures.WithLabelValues(op, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
