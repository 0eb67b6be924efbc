/*
Package config loads and validates Paddock server configuration.

Configuration is resolved in three layers: compiled-in defaults, an optional
YAML file, and PADDOCK_* environment variables, applied in that order. The
result is a single Config value handed to every subsystem at boot. Nothing in
Paddock reads configuration after startup; changing the file requires a
restart.

# Architecture

	┌────────────────── CONFIGURATION RESOLUTION ───────────────┐
	│                                                             │
	│  ┌──────────────────────────────────────────────┐          │
	│  │              Defaults                         │          │
	│  │  - config.Default()                           │          │
	│  │  - Paths under /var/lib/paddock               │          │
	│  │  - Deployment bind 0.0.0.0:5001               │          │
	│  │  - Management bind 0.0.0.0:5000               │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │ overlaid by                           │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │              YAML file (optional)             │          │
	│  │  - Path given on the command line             │          │
	│  │  - Partial files are fine; absent keys        │          │
	│  │    keep their current value                   │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │ overlaid by                           │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │              Environment                      │          │
	│  │  - PADDOCK_DATABASE_PATH, PADDOCK_SERVER_IP,  │          │
	│  │    PADDOCK_SECRET_KEY, ...                    │          │
	│  │  - Highest precedence                         │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                       │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │              Validate()                       │          │
	│  │  - Rejects empty paths and binds              │          │
	│  └──────────────────────────────────────────────┘          │
	└─────────────────────────────────────────────────────────┘

# Settings

Storage:
  - DatabasePath: SQLite database file (default /var/lib/paddock/paddock.db)
  - ImageDir: directory holding master image files
  - LogDir: directory receiving daily deployment audit logs

Network:
  - DeploymentBind: listen address for the provisioning-side HTTP server
  - ManagementBind: listen address for the management API and websocket
  - ServerIP: the deployment-network address advertised inside image URLs;
    devices on the isolated provisioning network cannot resolve names, so
    the coordinator embeds this literal IP

Health sampling:
  - MonitoredServices: systemd unit names probed every cycle
  - DiskPath: filesystem whose usage is reported

Secrets:
  - SecretKey: signs management sessions. Read from the environment only
    (PADDOCK_SECRET_KEY); the YAML tag is "-" so a config file can never
    carry it.

Logging:
  - LogLevel: debug, info, warn, error
  - LogJSON: structured JSON (true) or human console output (false)

# Usage

Loading with a file:

	cfg, err := config.Load("/etc/paddock/config.yaml")
	if err != nil {
		log.Fatal(err.Error())
	}

Loading defaults plus environment only:

	cfg, err := config.Load("")

Example YAML file:

	database_path: /var/lib/paddock/paddock.db
	image_dir: /var/lib/paddock/images
	log_dir: /var/lib/paddock/logs
	deployment_bind: 0.0.0.0:5001
	management_bind: 0.0.0.0:5000
	server_ip: 192.168.151.1
	monitored_services:
	  - dnsmasq
	  - nginx
	  - paddock-deploy
	  - paddock-mgmt
	disk_path: /var/lib/paddock
	log_level: info
	log_json: true

Environment overrides:

	PADDOCK_SERVER_IP=10.0.40.1 \
	PADDOCK_LOG_LEVEL=debug \
	paddock server --config /etc/paddock/config.yaml

List-valued variables are comma-separated:

	PADDOCK_MONITORED_SERVICES=dnsmasq,nginx

# Integration Points

This package integrates with:

  - cmd/paddock: loads configuration before constructing subsystems
  - pkg/store: receives DatabasePath
  - pkg/images: receives ImageDir
  - pkg/coordinator: receives ServerIP, ImageDir, LogDir, DeploymentBind
  - pkg/fanout: receives ManagementBind
  - pkg/sysmon: receives MonitoredServices, DiskPath, DatabasePath

# Design Patterns

Layered Resolution:

	Defaults are a complete, bootable configuration. The file and the
	environment only override; they never need to be complete themselves.

Fail-Fast Validation:

	Load validates before returning. A Config that reaches the rest of
	the program is always usable; subsystems do not re-check it.

Secret Hygiene:

	SecretKey carries yaml:"-" so it cannot be committed to a config
	file by accident. It travels through the environment, typically via
	a systemd drop-in with restricted permissions.

# Troubleshooting

Empty value errors at startup:
  - Symptom: "database_path must not be empty"
  - Cause: a YAML key explicitly set to ""
  - Solution: remove the key to inherit the default

Environment variable ignored:
  - Symptom: PADDOCK_* variable has no effect
  - Check: variable name matches the envconfig tag (upper snake case)
  - Check: the process environment actually carries it under systemd

# See Also

  - pkg/log for the logging configuration consumed from this package
  - cmd/paddock for command-line flag handling
*/
package config
