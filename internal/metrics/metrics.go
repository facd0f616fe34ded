// Package metrics defines Prometheus metrics for kpfed.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kpfed_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpfed_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpfed_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kpfed_provider_request_duration_seconds",
			Help:    "Knowledge provider round trip duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"provider", "state"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpfed_provider_requests_total",
			Help: "Knowledge provider requests by outcome",
		},
		[]string{"provider", "state"},
	)

	ProviderBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kpfed_provider_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	ExpansionNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kpfed_expansion_nodes",
			Help:    "Nodes in the knowledge graph returned by an expansion",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	ExpansionEdges = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kpfed_expansion_edges",
			Help:    "Edges in the knowledge graph returned by an expansion",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	DirectoryRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpfed_directory_refreshes_total",
			Help: "Provider directory refreshes by outcome",
		},
		[]string{"outcome"},
	)

	TraceEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kpfed_trace_events_dropped_total",
			Help: "Trace events dropped because the publish queue was full",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kpfed_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		ProviderRequestDuration, ProviderRequestsTotal, ProviderBreakerState,
		ExpansionNodes, ExpansionEdges,
		DirectoryRefreshes, TraceEventsDropped, WSConnections,
	)
}
