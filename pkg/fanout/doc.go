/*
Package fanout implements the management-network surface: the operator
REST API, the Prometheus endpoint, and the websocket fan-out that keeps
dashboards live without polling.

The server bridges the internal event bus onto connected websocket
clients. Deployment transitions published by the coordinator arrive on
dashboards as deployment_update frames within one hop; dashboard stats
go out on a fixed cadence and whenever any client asks.

# Architecture

	                 ┌────────────── MANAGEMENT NETWORK ─────────────┐
	                 │                                                │
	   operator ─────┼──REST /api/...──►┌──────────────────────────┐  │
	   dashboard ────┼──GET  /ws───────►│          Server          │  │
	   prometheus ───┼──GET  /metrics──►└────┬────────────┬────────┘  │
	                 │                       │            │           │
	                 └───────────────────────┼────────────┼───────────┘
	                                         │            │
	                   bus (deployment_status│            │ Hub
	                        + system_health) │            │
	                                         ▼            ▼
	                                   ┌──────────┐  ┌──────────────┐
	                                   │  Broker  │  │ client*N     │
	                                   │          │  │ (one pump    │
	                                   └──────────┘  │  pair each)  │
	                                                 └──────────────┘

# Core Components

Server:
  - REST routes for stats, venues, deployment history, system status,
    batches, and pool management. Writes delegate to the allocator;
    reads go straight to the store.
  - GET /ws upgrades to a websocket, greets the client with a status
    frame and a stats snapshot, then registers it with the hub.
  - A run loop pumps bus events to the hub and pushes a stats_update
    every five seconds while anyone is connected.

Hub:
  - Owns the client set on a single goroutine. Registration,
    disconnection, broadcasts, and direct replies all serialize through
    its channels, so client send queues are closed exactly once.
  - Broadcast marshals each envelope once and fans the bytes out.

client:
  - One websocket connection with a read pump and a write pump. The
    send queue holds 32 frames; a stalled dashboard loses its oldest
    frames rather than stalling the hub.

# Usage

	srv := fanout.NewServer(cfg, st, alloc, sampler, bus)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop(ctx)

Clients send request envelopes over the socket:

	{"event": "request_stats"}
	{"event": "request_deployments"}
	{"event": "request_system_status"}
	{"event": "trigger_deployment_update", "data": {...}}

request_stats answers with a broadcast so every dashboard refreshes
together; request_deployments and request_system_status answer the
requester alone.

# Integration Points

This package integrates with:

  - pkg/events: subscribes to deployment_status and system_health
  - pkg/sysmon: fresh snapshots for system status requests, via the
    HealthSource interface
  - pkg/allocator: venue, pool, and batch writes
  - pkg/store: history and stats reads
  - pkg/metrics: the /metrics endpoint plus connected-client gauge

# Design Patterns

The websocket route bypasses the instrument middleware: the connection
is hijacked, so per-request deadlines and status recording do not
apply. The HTTP server bounds header reads only; REST handlers get
their deadlines per request.

Slow consumers never block producers. The bus subscription buffers and
drops oldest, the hub inbox is buffered, and each client queue drops
oldest independently, so one wedged dashboard cannot delay another.

# Troubleshooting

Common issues:

1. Dashboard connects but sees no live transitions: confirm the
   coordinator and fanout servers share one Broker instance
2. system_status requests go unanswered: the server was built without
   a HealthSource and no snapshot has arrived on the bus yet
3. Push clients disconnect after ~60s behind a proxy: the proxy must
   pass pings through, or idle sockets miss the pong window

# See Also

  - pkg/coordinator for the deployment-network API
  - pkg/sysmon for what a system status snapshot contains
*/
package fanout
