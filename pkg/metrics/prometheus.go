package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics holds the Prometheus metrics for the realtime service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSEventsTotal *prometheus.CounterVec

	// Message relay metrics
	MessagesTotal *prometheus.CounterVec

	// Call metrics
	CallsTotal   *prometheus.CounterVec
	CallsActive  prometheus.Gauge
	CallDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics for a service
func NewMetrics(service string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ws_connections",
			Help:        "Number of open real-time connections",
			ConstLabels: labels,
		}),
		WSEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ws_events_total",
			Help:        "Total number of real-time events by name and direction",
			ConstLabels: labels,
		}, []string{"event", "direction"}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "messages_total",
			Help:        "Total number of relayed messages by delivery path",
			ConstLabels: labels,
		}, []string{"delivery"}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "calls_total",
			Help:        "Total number of call attempts by terminal outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		CallsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "calls_active",
			Help:        "Number of in-flight call sessions",
			ConstLabels: labels,
		}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "call_duration_seconds",
			Help:        "Duration of completed calls",
			ConstLabels: labels,
			Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WSConnections,
		m.WSEventsTotal,
		m.MessagesTotal,
		m.CallsTotal,
		m.CallsActive,
		m.CallDuration,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
