/*
Package types defines the core data structures used throughout Paddock.

This package contains all fundamental types that represent Paddock's domain
model, including venues, hostname pool entries, deployment batches, deployment
history records, and master images. These types are used by all other packages
for persistence, API payloads, and live-update messages.

# Architecture

The types package is the foundation of Paddock's data model. It defines:

  - Venue scoping (4-character venue codes)
  - Hostname pool entries and their lifecycle states
  - Deployment batches (prioritized intents to image N devices)
  - Deployment history rows and their state machine
  - Master image metadata
  - Wire payloads for the management push channel

All types are designed to be:
  - Serializable (JSON on both HTTP surfaces)
  - Plain records (events and snapshots are values, not shared state)
  - Self-documenting (clear field names and comments)
  - Validated (typed string enums with helper predicates)

# Core Types

Hostname Allocation:
  - ProductType: KXP2 (pool-drawing) or RXP2 (serial-derived)
  - Venue: the scoping unit for hostnames
  - VenueSummary: venue plus per-product pool counts
  - VenueStats: available/assigned/retired counts for one venue
  - PoolEntry: one hostname slot; the hostname string is derived, never stored
  - PoolStatus: available, assigned, retired
  - ImportResult: outcome of a bulk identifier import

Batch Scheduling:
  - DeploymentBatch: prioritized intent to image N devices for a venue/product
  - BatchStatus: pending, active, paused, completed, cancelled

Deployment Tracking:
  - DeploymentRecord: one history row for a device deployment
  - DeploymentStatus: started, downloading, verifying, customizing,
    success, failed
  - DeploymentSummary: compact history row for dashboard payloads

Images:
  - MasterImage: an opaque disk image served to provisioning targets

Push Payloads:
  - DashboardStats: statistics snapshot broadcast to management clients
  - DeploymentEvent: per-device status transition broadcast

# Hostname Derivation

A hostname is always the derived string PRODUCT-VENUE-IDENTIFIER and is never
stored as a column. The helpers keep derivation and parsing symmetric:

	hostname := types.BuildHostname(types.ProductKXP2, "CORO", "001")
	// "KXP2-CORO-001"

	product, venue, identifier, err := types.ParseHostname(hostname)
	// ProductKXP2, "CORO", "001", nil

RXP2 identifiers come from the device serial number:

	id := types.RXP2Identifier("100000007485b29f")
	// "7485B29F" (last 8 characters, uppercased)

When no venue claims a device, the coordinator synthesizes a hostname that is
not backed by any pool row:

	h := types.FallbackHostname(types.ProductKXP2, "100000007485b29f")
	// "KXP2-DEFAULT-85B29F"

# State Machine

Deployment history rows follow a state machine:

	[none] → started → downloading → verifying → customizing → success
	            ↓           ↓            ↓            ↓
	          failed      failed       failed       failed

Valid transitions:
  - started is written when a config request is served
  - Progress reports advance the row to the reported state; out-of-order
    reports are tolerated
  - success and failed are terminal; a terminal row is never overwritten

IsTerminal reports whether a status ends a deployment:

	if record.Status.IsTerminal() {
		// row is frozen; late reports are logged and dropped
	}

Installers report a slightly wider status taxonomy than history stores.
NormalizeDeploymentStatus maps the ingress union onto the canonical set:

	status, ok := types.NormalizeDeploymentStatus("starting")
	// DeploymentStarted, true

	status, ok = types.NormalizeDeploymentStatus("completed")
	// DeploymentSuccess, true

Batches follow their own lifecycle:

	pending → active ⇄ paused
	             ↓
	         completed (automatic when remaining_count reaches 0)

cancelled is terminal and can be entered from any non-terminal state.

# Usage

Creating a venue:

	venue := &types.Venue{
		Code:         "CORO",
		Name:         "Corona Raceway",
		Location:     "Corona, CA",
		ContactEmail: "ops@example.com",
	}

Deriving a pool entry's hostname:

	entry := &types.PoolEntry{
		ProductType: types.ProductKXP2,
		VenueCode:   "CORO",
		Identifier:  "001",
		Status:      types.PoolAvailable,
	}
	hostname := entry.Hostname() // "KXP2-CORO-001"

Building a push event from a history row:

	event := &types.DeploymentEvent{
		DeploymentID: record.ID,
		Hostname:     record.Hostname,
		Status:       record.Status,
		Timestamp:    time.Now().UTC().Format(types.ISO8601),
	}

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type PoolStatus string
	  const (
	      PoolAvailable PoolStatus = "available"
	      PoolAssigned  PoolStatus = "assigned"
	  )

Derived Values:

	The hostname string is a pure function of (product, venue, identifier).
	Storing it would create a second source of truth; BuildHostname and
	ParseHostname keep the mapping bidirectional instead.

Optional Fields:

	Timestamps that may be unset use pointers:
	  - *AssignedAt: nil = entry never assigned
	  - *CompletedAt: nil = deployment or batch still in flight

# Integration Points

This package integrates with:

  - pkg/store: persists all types to SQLite
  - pkg/allocator: validates and normalizes input before building records
  - pkg/coordinator: serves DeploymentRecord rows and emits DeploymentEvent
  - pkg/fanout: serves VenueSummary, DashboardStats, DeploymentBatch as JSON
  - pkg/events: carries DeploymentEvent and DashboardStats as payload values

# Validation

Key validation rules (enforced by pkg/allocator and the store schema):

Venues:
  - Code must be exactly 4 uppercase alphanumeric characters
  - Lowercase input is accepted and normalized before use

Pool entries:
  - (product_type, venue_code, identifier) is unique
  - Identifiers are at least 3 characters; purely numeric identifiers are
    zero-padded to width 3 so lexicographic order matches numeric order

Batches:
  - total_count must be positive
  - remaining_count is never negative
  - completed implies remaining_count = 0 and completed_at set

# Thread Safety

All types in this package are plain records:
  - Read-safe: can be read concurrently from multiple goroutines
  - Write-unsafe: mutations must be synchronized by callers

The store owns all persistent state. Everything handed to the event bus is
materialized as a value at publish time, so subscribers never observe a
concurrent mutation.

# See Also

  - pkg/store for the persistence layer
  - pkg/allocator for the allocation disciplines built on these types
  - pkg/coordinator for the deployment-side wire format
  - pkg/fanout for the management-side wire format
*/
package types
