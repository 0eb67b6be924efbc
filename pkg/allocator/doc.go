/*
Package allocator implements hostname assignment for fleet provisioning.

The allocator owns the naming discipline of the fleet: which hostname a
device receives, how venue pools are filled and drained, and how
prioritized deployment batches hand out assignments. It validates and
normalizes every external input (venue codes, product types, pool
identifiers, hostnames) before the store is touched, and re-exports the
store's sentinel errors so HTTP handlers and CLI commands translate one
package's errors.

# Architecture

	┌────────────────── HOSTNAME ALLOCATOR ──────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐        │
	│  │            Validation Layer                 │        │
	│  │  - Venue codes: ^[A-Z0-9]{4}$               │        │
	│  │  - Products: KXP2 | RXP2                    │        │
	│  │  - Identifiers: numeric → %03d, else UPPER  │        │
	│  │  - Hostnames: PRODUCT-VENUE-IDENTIFIER      │        │
	│  └──────────────────┬─────────────────────────┘        │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐        │
	│  │         Assignment Disciplines              │        │
	│  │                                              │        │
	│  │  KXP2 (pool draw):                          │        │
	│  │    smallest available identifier for the    │        │
	│  │    venue, marked assigned with MAC/serial   │        │
	│  │                                              │        │
	│  │  RXP2 (serial-derived):                     │        │
	│  │    identifier = last 8 chars of serial,     │        │
	│  │    idempotent per serial                    │        │
	│  └──────────────────┬─────────────────────────┘        │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐        │
	│  │         Deployment Batches                  │        │
	│  │  - pending → active → paused/completed      │        │
	│  │  - priority DESC, id ASC selection          │        │
	│  │  - draw + decrement in one transaction      │        │
	│  │  - auto-complete at remaining = 0           │        │
	│  └──────────────────┬─────────────────────────┘        │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐        │
	│  │              pkg/store                      │        │
	│  │  SQLite, single-writer transactions         │        │
	│  └────────────────────────────────────────────┘        │
	└──────────────────────────────────────────────────────┘

# Core Components

Allocator:
  - Facade over the store for venues, pool, and batches
  - Stateless besides its store handle; safe for concurrent use
  - Records assignment outcomes in Prometheus counters

Venue management:
  - CreateVenue/UpdateVenue/GetVenue/ListVenues/VenueStats
  - Codes normalized to uppercase, exactly 4 alphanumerics

Pool management:
  - BulkImport loads identifiers; duplicates counted, never an error
  - Release returns a hostname to the pool and clears the device info
  - Retire removes an entry from circulation permanently

Assignment:
  - Assign(product, venue, mac, serial) returns the full hostname
  - AssignFromBatch(id, mac, serial) draws under an active batch
  - Exhausted pools surface ErrExhausted, not a raw driver error

# Usage

Direct assignment:

	alloc := allocator.New(st)

	hostname, err := alloc.Assign("KXP2", "MONZ", mac, serial)
	switch {
	case errors.Is(err, allocator.ErrExhausted):
		// pool empty for the venue
	case errors.Is(err, allocator.ErrInvalidInput):
		// malformed venue or product
	}

Pool import:

	result, err := alloc.BulkImport("MONZ", "KXP2", []string{"1", "2", "10"})
	// result.Imported + result.Duplicates == 3

Batch flow:

	id, err := alloc.CreateBatch("MONZ", "KXP2", 25, 10)
	err = alloc.StartBatch(id)

	batch, err := alloc.GetActiveBatch()
	hostname, err := alloc.AssignFromBatch(batch.ID, mac, serial)

# Error Semantics

  - ErrInvalidInput: malformed code, product, identifier, or hostname
  - ErrNotFound: venue, batch, or pool entry does not exist
  - ErrExhausted: no available identifier for (product, venue)
  - ErrAlreadyExists: duplicate venue code
  - ErrInsufficientPool: KXP2 batch larger than the available pool
  - ErrBatchNotActive: assignment or transition from the wrong state

All wrap the underlying context with %w, so errors.Is works through the
call chain.

# Integration Points

This package integrates with:

  - pkg/store: All state; single-transaction draw semantics
  - pkg/types: Hostname derivation and record shapes
  - pkg/metrics: paddock_assignments_total{product, outcome}
  - pkg/coordinator: Device-facing assignment during /api/config
  - pkg/fanout: Management REST for venues, pool, and batches
  - cmd/paddock: Operator CLI for the same operations

# Design Patterns

Normalize at the Edge:
  - Every public method normalizes before querying, so the store only
    ever sees canonical codes and identifiers
  - "monz" and " MONZ " address the same venue everywhere

Idempotent Serial Assignment:
  - RXP2 re-registration returns the existing hostname untouched
  - Devices can safely re-run provisioning after a mid-flash failure

Single-Transaction Draws:
  - Pool draw and batch decrement share one transaction in the store;
    two devices can never receive the same identifier

# Troubleshooting

Assignment returns ErrExhausted:
  - Check: available entries for the venue (ListPool venue KXP2 available)
  - Cause: pool consumed or identifiers retired
  - Solution: import more identifiers or release stale assignments

Batch never activates:
  - Check: batch status (completed and cancelled are terminal)
  - Check: a higher-priority active batch may shadow it in GetActiveBatch

Import reports only duplicates:
  - Cause: identifiers normalize onto existing rows ("1" == "001")
  - Solution: expected behavior; duplicates are skipped silently

# See Also

  - pkg/store: persistence and transaction semantics
  - pkg/coordinator: device-facing assignment flow
  - pkg/fanout: management REST surface
*/
package allocator
