package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics: свой реестр на процесс; реализует app.Observer.
type Metrics struct {
	registry *prometheus.Registry

	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	navigationTotal  *prometheus.CounterVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "ecovision",
			Name:        "analysis_total",
			Help:        "Analyses by provider and outcome (success or failure reason).",
			ConstLabels: constLabels,
		},
		[]string{"provider", "outcome"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "ecovision",
			Name:        "analysis_duration_seconds",
			Help:        "Provider call duration in seconds.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 3, 5, 10, 20, 30, 60},
			ConstLabels: constLabels,
		},
		[]string{"provider"},
	)
	navigationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "ecovision",
			Name:        "navigation_total",
			Help:        "Page navigations by target page and status.",
			ConstLabels: constLabels,
		},
		[]string{"page", "status"},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "ecovision",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "ecovision",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "route"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "ecovision",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(
		analysisTotal,
		analysisDuration,
		navigationTotal,
		requestTotal,
		requestDuration,
		requestInFlight,
	)

	return &Metrics{
		registry:         registry,
		analysisTotal:    analysisTotal,
		analysisDuration: analysisDuration,
		navigationTotal:  navigationTotal,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAnalysis(provider, outcome string, d time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	m.analysisTotal.WithLabelValues(provider, outcome).Inc()
	m.analysisDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ObserveNavigation(page, status string) {
	m.navigationTotal.WithLabelValues(page, status).Inc()
}

// Middleware пишет метрики по шаблону маршрута chi, а не по сырому пути,
// чтобы id сессий не раздували кардинальность.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return h.Hijack()
}
