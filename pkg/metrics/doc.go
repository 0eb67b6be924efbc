/*
Package metrics provides Prometheus metrics collection and exposition for Paddock.

The metrics package defines and registers all Paddock metrics using the
Prometheus client library, providing observability into hostname allocation,
deployment progress, HTTP traffic on both servers, event bus throughput, and
live-update client connections. Metrics are exposed via HTTP endpoint for
scraping by Prometheus servers.

# Architecture

Paddock's metrics system follows Prometheus best practices with
instrumentation across the allocation and deployment pipeline:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Allocation: Assignments, pool gauges       │          │
	│  │  Deployments: Transitions, image bytes      │          │
	│  │  HTTP: Request count, duration per server   │          │
	│  │  Events: Published, dropped per topic       │          │
	│  │  Push: Connected live-update clients        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Gauge Collector                    │          │
	│  │  - Polls the store every 15 seconds         │          │
	│  │  - Pool entries by product and status       │          │
	│  │  - Remaining count of the active batch      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics (management server)       │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Collector:
  - Background goroutine polling the store every 15 seconds
  - Resolves pool entry counts and active batch progress
  - Start/Stop lifecycle matching other Paddock components

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Allocation Metrics:

paddock_assignments_total{product, outcome}:
  - Type: Counter
  - Description: Hostname assignments by product and outcome
  - Labels: product (KXP2/RXP2), outcome (assigned/exhausted/invalid/error)
  - Example: paddock_assignments_total{product="KXP2",outcome="assigned"} 412

paddock_pool_entries{product, status}:
  - Type: Gauge
  - Description: Hostname pool entries by product and status
  - Labels: product, status (available/assigned)
  - Example: paddock_pool_entries{product="KXP2",status="available"} 88

paddock_active_batch_remaining:
  - Type: Gauge
  - Description: Remaining assignments in the active batch (0 when none)

Deployment Metrics:

paddock_deployment_transitions_total{status}:
  - Type: Counter
  - Description: Deployment status transitions recorded via /api/status
  - Labels: status (started/downloading/verifying/customizing/success/failed)

paddock_image_bytes_served_total:
  - Type: Counter
  - Description: Master image bytes streamed to devices

HTTP Metrics:

paddock_http_requests_total{server, path, status}:
  - Type: Counter
  - Description: HTTP requests by server (deployment/management), path and status
  - Example: paddock_http_requests_total{server="deployment",path="/api/config",status="200"} 57

paddock_http_request_duration_seconds{server, path}:
  - Type: Histogram
  - Description: HTTP request duration in seconds
  - Buckets: Default Prometheus buckets

Event Bus Metrics:

paddock_events_published_total{topic}:
  - Type: Counter
  - Description: Events published by topic

paddock_events_dropped_total{topic}:
  - Type: Counter
  - Description: Events dropped from saturated subscriber queues

Push Channel Metrics:

paddock_push_clients:
  - Type: Gauge
  - Description: Connected live-update websocket clients

# Usage

Updating Counter Metrics:

	import "github.com/pitlane/paddock/pkg/metrics"

	metrics.AssignmentsTotal.WithLabelValues("KXP2", "assigned").Inc()
	metrics.ImageBytesServed.Add(float64(n))

Recording Histogram Observations:

	timer := metrics.NewTimer()
	// ... handle request ...
	timer.ObserveDurationVec(metrics.HTTPRequestDuration, "deployment", "/api/config")

Running the Gauge Collector:

	collector := metrics.NewCollector(st)
	collector.Start()
	defer collector.Stop()

Exposing the Endpoint:

	mux.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/store: Collector polls pool and batch gauges
  - pkg/allocator: Records assignment outcomes
  - pkg/events: Counts published and dropped events
  - pkg/coordinator: Instruments device-facing HTTP traffic and image bytes
  - pkg/fanout: Instruments management HTTP traffic, mounts /metrics,
    tracks connected push clients
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Route patterns as path labels, never raw URLs with IDs
  - Keep label count low (< 4 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Supports both simple and vector histograms

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Negligible impact on the assignment hot path

Collector Overhead:
  - One aggregate stats query plus one batch lookup per cycle
  - Cycle interval: 15 seconds
  - Skips the cycle silently when the store is unavailable

# Troubleshooting

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Solution: Verify metric variable is exported and updated

Stale Pool Gauges:
  - Symptom: paddock_pool_entries not changing after imports
  - Cause: Collector not started or store errors
  - Check: Collector Start() called in server boot
  - Solution: Inspect server logs for store failures

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Raw request paths used as labels
  - Solution: Label handlers with route patterns only

# Monitoring

Prometheus Queries (PromQL):

Pool Health:
  - Available KXP2: paddock_pool_entries{product="KXP2",status="available"}
  - Exhaustion rate: rate(paddock_assignments_total{outcome="exhausted"}[5m])

Deployment Progress:
  - Success rate: rate(paddock_deployment_transitions_total{status="success"}[15m])
  - Failure rate: rate(paddock_deployment_transitions_total{status="failed"}[15m])

HTTP Performance:
  - Request rate: rate(paddock_http_requests_total[1m])
  - p95 latency: histogram_quantile(0.95, paddock_http_request_duration_seconds_bucket)

Event Bus Health:
  - Drop ratio: rate(paddock_events_dropped_total[5m]) / rate(paddock_events_published_total[5m])

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
