/*
Package sysmon samples the health of the machine hosting the provisioning
server: the systemd units the deployment network depends on, the database,
and the disk holding images and state.

A snapshot is published on the system_health topic every five seconds and
can be computed fresh on demand for the management API. Probes degrade
into error-carrying results; nothing in this package returns an error to
its caller and nothing here can crash the server.

# Architecture

	           ┌────────────── Sampler ──────────────┐
	           │    5 s ticker ──► Snapshot(ctx)      │
	           └───────┬──────────┬──────────┬────────┘
	                   │          │          │
	                   ▼          ▼          ▼
	             systemd dbus   Store     Statfs
	             (ActiveState) (Ping +   (capacity)
	                            SizeMB)
	                   │          │          │
	                   └──────────┴──────────┘
	                              │
	                              ▼
	                   events.TopicSystemHealth

# Core Components

Sampler:
  - probeServices: one dbus connection per snapshot, ActiveState per
    unit. Bare names get a .service suffix. A dead service manager
    marks every unit down with the connection error.
  - probeDatabase: store Ping plus file size in MB.
  - probeDisk: Statfs on the data path; gigabytes to two decimals,
    used percentage to one.

Snapshot:
  - Marshals to the management wire shape: service names become
    top-level keys next to database, disk_space, and timestamp.

# Usage

	sampler := sysmon.NewSampler(cfg, st, bus)
	sampler.Start()
	defer sampler.Stop()

	snap := sampler.Snapshot(ctx) // fresh, on demand

# Integration Points

This package integrates with:

  - pkg/events: system_health publications
  - pkg/fanout: /api/system/status and the system_status push event
  - pkg/store: database reachability probe

# Troubleshooting

Units reporting "error: ..." usually mean the server cannot reach the
system dbus socket (containerized deployments need /run/dbus mounted).
The rest of the snapshot stays meaningful when that happens.
*/
package sysmon
