/*
Package coordinator implements the deployment-network HTTP API that
installers talk to while flashing a device.

The coordinator owns the full first-boot conversation: hand out a hostname
and an image assignment, stream the image content, and collect progress
reports until the deployment reaches a terminal state. It binds to the
closed deployment network and carries no authentication.

# Architecture

	┌─────────────────── DEPLOYMENT NETWORK ───────────────────┐
	│                                                            │
	│   installer ──POST /api/config──►┌──────────────────────┐ │
	│   installer ──POST /api/status──►│        Server        │ │
	│   installer ──GET  /images/...──►│                      │ │
	│   dhcp/pxe  ──GET  /health──────►└──────┬───────────────┘ │
	│                                          │                 │
	└──────────────────────────────────────────┼─────────────────┘
	                                           │
	              ┌────────────┬───────────────┼──────────────┐
	              ▼            ▼               ▼              ▼
	        ┌─────────┐  ┌──────────┐  ┌────────────┐  ┌──────────┐
	        │Allocator│  │  Images  │  │   Store    │  │  Broker  │
	        │ (names) │  │ (content)│  │ (history)  │  │ (events) │
	        └─────────┘  └──────────┘  └────────────┘  └──────────┘

# Core Components

Server:
  - POST /api/config: resolves the device's hostname. An active batch
    overrides the request's venue and product; otherwise a provided venue
    draws from its pool; with neither, a synthetic PRODUCT-DEFAULT-xxxxxx
    hostname is returned without touching the pool. The response carries
    the image URL, size, and checksum plus the API version.
  - POST /api/status: advances the deployment history row, appends the
    raw report to the daily status log, and publishes a
    deployment_status event. Reports after a terminal state are
    acknowledged and dropped.
  - GET /images/{filename}: streams image content with an explicit
    Content-Length. No write deadline applies; client cancellation is
    logged at debug and tears the copy down.
  - GET /health: liveness probe.

statusLog:
  - One comma-separated line per report in deployment_YYYYMMDD.log.
    Appends are mutex-serialized and open the file per write, so the
    day rolls over without a timer.

# Usage

	srv := coordinator.NewServer(cfg, st, alloc, lib, bus)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop(ctx)

# Integration Points

This package integrates with:

  - pkg/allocator: hostname and batch draws
  - pkg/images: image resolution and safe content streaming
  - pkg/store: deployment history writes
  - pkg/events: deployment_status publications consumed by pkg/fanout
  - pkg/metrics: request counters, durations, bytes served

# Design Patterns

API routes carry a 5 second write deadline set per request; the image
route opts out because installers hold downloads open for minutes. The
server's read timeout is global since no route accepts a large body.

Error translation happens only here at the HTTP edge: allocator and
store sentinels map to 400/404, everything unexpected maps to a generic
500 so internals never leak to the deployment network.

# Troubleshooting

Common issues:

1. 404 "No active image": register an image for the product or drop a
   <product>_master.img file into the image directory
2. 404 "pool exhausted": the venue has no available identifiers left;
   import more or release retired devices
3. Installers stuck at started: check the daily status log; reports for
   hostnames with a finished history row are acknowledged but never
   reopen the row

# See Also

  - pkg/fanout for the management-network surfaces
  - pkg/images for image resolution rules
*/
package coordinator
