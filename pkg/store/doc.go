/*
Package store is the persistence layer: a single SQLite database holding
venues, the hostname pool, deployment history, master image metadata,
and deployment batches.

Every other package reads and writes state through this one. The store
exposes typed queries, never raw rows; callers get domain records from
pkg/types and sentinel errors they can branch on.

# Architecture

	┌────────────────────────── paddock.db ─────────────────────────┐
	│                                                                │
	│  venues ──────────┐                                            │
	│                   │ code                                       │
	│  hostname_pool ◄──┤   (product_type, venue_code, identifier)   │
	│                   │   unique triple, status machine            │
	│  deployment_batches◄─ priority queue over the pool             │
	│                                                                │
	│  deployment_history    append-mostly audit of every install    │
	│  master_images         image metadata, one active per product  │
	│  schema_migrations     golang-migrate bookkeeping              │
	└────────────────────────────────────────────────────────────────┘

# Core Components

Store:
  - Open: single-connection handle with WAL, foreign keys, and a busy
    timeout baked into the DSN. One writer at a time is the SQLite
    reality; the connection cap makes it explicit.
  - Migrate/SchemaVersion/Verify/Reset: embedded migrations via
    golang-migrate, applied on startup and driven by the db
    subcommands.

Pool queries:
  - AssignNextAvailable draws the smallest available identifier.
  - EnsureSerialAssignment is the idempotent serial-derived path:
    the same serial always resolves to the same entry.
  - BulkInsertPool counts duplicates instead of failing on them.

History queries:
  - InsertHistory opens a run; AdvanceHistory moves the newest
    non-terminal row for a hostname and reports whether anything
    changed. Terminal rows are immutable.

Batch queries:
  - ActiveBatch picks by priority, oldest first on ties.
  - AssignFromBatch draws and decrements in one transaction and
    completes the batch on the final slot.

DashboardStats materializes the dashboard snapshot in one pass over
the pool plus two history probes.

# Usage

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return err
	}

	entry, err := st.AssignNextAvailable(types.ProductKXP2, "CORO", mac, serial)
	if errors.Is(err, store.ErrPoolExhausted) {
		// venue has no identifiers left
	}

# Integration Points

This package integrates with:

  - pkg/allocator: every pool and batch mutation
  - pkg/coordinator and pkg/fanout: history writes and reads
  - pkg/images: master image rows
  - pkg/sysmon: Ping and SizeMB for database health probes
  - cmd/paddock: db init, db verify, db reset

# Design Patterns

Writes that must see a consistent pool run inside withTx, which retries
a handful of times on SQLITE_BUSY before giving up. Multi-step draws
(batch assignment, serial idempotence) are single transactions, so two
concurrent installers can never receive the same hostname.

Errors callers need to branch on are wrapped sentinels: ErrNotFound,
ErrAlreadyExists, ErrPoolExhausted, ErrInsufficientPool, ErrBatchState,
ErrBatchDepleted. Everything else is a wrapped driver error.

# Troubleshooting

Common issues:

1. "database is locked": another process holds the file. The servers
   and CLI share one path; stop one before pointing the other at it
2. Verify fails after a partial migration: run db reset, or remove the
   file and run db init
3. Slow queries on large history: the schema indexes hostname and
   started_at; check that migrations are current with db verify

# See Also

  - pkg/store/migrations for the schema itself
  - pkg/allocator for the rules layered on these queries
*/
package store
