package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Allocation metrics
	AssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_assignments_total",
			Help: "Total number of hostname assignments by product and outcome",
		},
		[]string{"product", "outcome"},
	)

	PoolEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paddock_pool_entries",
			Help: "Number of hostname pool entries by product and status",
		},
		[]string{"product", "status"},
	)

	ActiveBatchRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paddock_active_batch_remaining",
			Help: "Remaining assignments in the currently active deployment batch (0 when none)",
		},
	)

	// Deployment metrics
	DeploymentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_deployment_transitions_total",
			Help: "Total number of deployment status transitions recorded",
		},
		[]string{"status"},
	)

	ImageBytesServed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paddock_image_bytes_served_total",
			Help: "Total number of master image bytes streamed to devices",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_http_requests_total",
			Help: "Total number of HTTP requests by server, path and status",
		},
		[]string{"server", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paddock_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by server and path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server", "path"},
	)

	// Event bus metrics
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_events_published_total",
			Help: "Total number of events published by topic",
		},
		[]string{"topic"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_events_dropped_total",
			Help: "Total number of events dropped from saturated subscriber queues by topic",
		},
		[]string{"topic"},
	)

	// Push channel metrics
	PushClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paddock_push_clients",
			Help: "Number of connected live-update clients",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(AssignmentsTotal)
	prometheus.MustRegister(PoolEntries)
	prometheus.MustRegister(ActiveBatchRemaining)
	prometheus.MustRegister(DeploymentTransitionsTotal)
	prometheus.MustRegister(ImageBytesServed)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(PushClients)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
