package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy's Prometheus instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts dispatched requests by provider and outcome.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes request handling time by provider.
	RequestDuration *prometheus.HistogramVec

	// ConnectTotal counts CONNECT tunnels by result (ok, bad_authority,
	// cert_failure, handshake_failure).
	ConnectTotal *prometheus.CounterVec

	// StreamBytes counts streamed response bytes by provider.
	StreamBytes *prometheus.CounterVec

	// PluginFailures counts dispatch failures by provider.
	PluginFailures *prometheus.CounterVec
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ganymede",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Dispatched requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ganymede",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Request handling duration by provider.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		}, []string{"provider"}),
		ConnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ganymede",
			Subsystem: "proxy",
			Name:      "connect_total",
			Help:      "CONNECT tunnels by result.",
		}, []string{"result"}),
		StreamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ganymede",
			Subsystem: "proxy",
			Name:      "stream_bytes_total",
			Help:      "Streamed response bytes by provider.",
		}, []string{"provider"}),
		PluginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ganymede",
			Subsystem: "proxy",
			Name:      "plugin_failures_total",
			Help:      "Plugin dispatch failures by provider.",
		}, []string{"provider"}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ConnectTotal,
		m.StreamBytes,
		m.PluginFailures,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
