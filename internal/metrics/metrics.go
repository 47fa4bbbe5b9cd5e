// Package metrics provides Prometheus metrics export for the client pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports session pipeline metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Chat metrics
	chatSends   *prometheus.CounterVec
	chatLatency *prometheus.HistogramVec

	// Auth metrics
	tokenRefreshes *prometheus.CounterVec

	// Backend request metrics
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	// Conversation naming metrics
	namingOutcomes *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.chatSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farmsense",
			Subsystem: "chat",
			Name:      "sends_total",
			Help:      "Total number of chat send cycles",
		},
		[]string{"status"},
	)

	e.chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "farmsense",
			Subsystem: "chat",
			Name:      "send_latency_seconds",
			Help:      "Chat send cycle latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"provider"},
	)

	e.tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farmsense",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Total number of token refresh attempts",
		},
		[]string{"status"},
	)

	e.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farmsense",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of backend requests",
		},
		[]string{"path", "status"},
	)

	e.requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "farmsense",
			Subsystem: "backend",
			Name:      "request_latency_seconds",
			Help:      "Backend request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"path"},
	)

	e.namingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farmsense",
			Subsystem: "chat",
			Name:      "naming_outcomes_total",
			Help:      "Total number of conversation naming attempts",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		e.chatSends,
		e.chatLatency,
		e.tokenRefreshes,
		e.requests,
		e.requestLatency,
		e.namingOutcomes,
	)

	return e
}

// RecordChatSend records one send cycle.
func (e *Exporter) RecordChatSend(provider string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.chatSends.WithLabelValues(status).Inc()
	e.chatLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordTokenRefresh records a refresh attempt.
func (e *Exporter) RecordTokenRefresh(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.tokenRefreshes.WithLabelValues(status).Inc()
}

// RecordRequest records a backend request.
func (e *Exporter) RecordRequest(path string, statusCode int, latency time.Duration) {
	e.requests.WithLabelValues(path, httpStatusClass(statusCode)).Inc()
	e.requestLatency.WithLabelValues(path).Observe(latency.Seconds())
}

// RecordNamingOutcome records a conversation naming attempt outcome:
// "named", "blank", or "error".
func (e *Exporter) RecordNamingOutcome(outcome string) {
	e.namingOutcomes.WithLabelValues(outcome).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func httpStatusClass(code int) string {
	switch {
	case code == 0:
		return "transport_error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
