package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	extractionsTotal      *prometheus.CounterVec
	chatRepliesTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipeflow_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recipeflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipeflow_upstream_requests_total",
				Help: "Total model provider API requests.",
			},
			[]string{"provider", "endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recipeflow_upstream_request_duration_seconds",
				Help:    "Model provider request duration in seconds.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
			},
			[]string{"provider", "endpoint", "status"},
		),
		extractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipeflow_extractions_total",
				Help: "Extraction outcomes: the cascade stage that recovered JSON, or the error kind.",
			},
			[]string{"outcome"},
		),
		chatRepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipeflow_chat_replies_total",
				Help: "Chat replies by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.extractionsTotal,
		m.chatRepliesTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

// UpstreamObserver binds the provider label for a client's observer option.
func (m *Metrics) UpstreamObserver(provider string) func(endpoint string, status int, duration time.Duration) {
	return func(endpoint string, status int, duration time.Duration) {
		m.ObserveUpstream(provider, endpoint, status, duration)
	}
}

func (m *Metrics) ObserveUpstream(provider, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.upstreamRequestsTotal.WithLabelValues(provider, endpoint, statusLabel).Inc()
	m.upstreamDuration.WithLabelValues(provider, endpoint, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveExtraction(outcome string) {
	if m == nil {
		return
	}
	m.extractionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveChat(outcome string) {
	if m == nil {
		return
	}
	m.chatRepliesTotal.WithLabelValues(outcome).Inc()
}
