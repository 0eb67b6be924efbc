/*
Package log provides structured logging for Paddock using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

Paddock's logging system provides structured JSON logging with minimal
overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("allocator")               │          │
	│  │  - WithVenue("CORO")                        │          │
	│  │  - WithHostname("KXP2-CORO-001")            │          │
	│  │  - WithBatchID(42)                          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "allocator",                │          │
	│  │    "time": "2026-02-10T10:30:00Z",         │          │
	│  │    "message": "hostname assigned"           │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF hostname assigned component=allocator │    │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Paddock packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithVenue: Add venue code context
  - WithHostname: Add device hostname context
  - WithBatchID: Add deployment batch context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "Pool query returned 42 available entries"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "Hostname assigned: KXP2-CORO-001"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "Status report for unknown hostname, ignoring"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "Failed to open image file: no such file"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "Failed to open database: %v"

# Usage

Initializing the Logger:

	import "github.com/pitlane/paddock/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/paddock/paddock.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("Store initialized successfully")
	log.Debug("Checking batch queue")
	log.Warn("KXP2 pool running low")
	log.Error("Failed to append deployment log line")
	log.Fatal("Cannot start without database") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("hostname", "KXP2-CORO-001").
		Str("serial_number", "100000007485b29f").
		Msg("Config served")

	log.Logger.Error().
		Err(err).
		Str("filename", "kxp2_master.img").
		Msg("Image checksum failed")

Component Loggers:

	// Create component-specific logger
	allocLog := log.WithComponent("allocator")
	allocLog.Info().Msg("Bulk import starting")
	allocLog.Debug().Str("venue_code", "CORO").Msg("Assigning next available")

	// Multiple context fields
	deployLog := log.WithComponent("coordinator").
		With().Str("hostname", "KXP2-CORO-001").
		Str("remote_addr", "192.168.151.40").Logger()
	deployLog.Info().Msg("Deployment started")
	deployLog.Error().Err(err).Msg("Deployment failed")

Context Logger Helpers:

	// Venue-specific logs
	venueLog := log.WithVenue("CORO")
	venueLog.Info().Msg("Venue created")

	// Device-specific logs
	hostLog := log.WithHostname("RXP2-DTLA-7485B29F")
	hostLog.Info().Msg("Status report received")

	// Batch-specific logs
	batchLog := log.WithBatchID(42)
	batchLog.Info().Msg("Batch activated")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/pitlane/paddock/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("Paddock starting")

		// Component-specific logging
		allocLog := log.WithComponent("allocator")
		allocLog.Info().
			Str("venue_code", "CORO").
			Int("imported", 50).
			Msg("Pool import finished")

		// Error logging
		err := errors.New("database is locked")
		log.Logger.Error().
			Err(err).
			Str("component", "store").
			Msg("Transaction retry exhausted")

		log.Info("Paddock stopped")
	}

# Integration Points

This package integrates with:

  - pkg/allocator: Logs assignment and import decisions
  - pkg/coordinator: Logs config requests and status reports
  - pkg/fanout: Logs client connections and broadcasts
  - pkg/sysmon: Logs probe failures
  - pkg/store: Logs migrations and busy retries
  - cmd/paddock: Initializes the logger from configuration

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"coordinator","time":"2026-02-10T10:30:00Z","message":"Config served"}
	{"level":"info","component":"allocator","hostname":"KXP2-CORO-001","time":"2026-02-10T10:30:01Z","message":"Hostname assigned"}
	{"level":"error","component":"images","filename":"kxp2_master.img","error":"no such file","time":"2026-02-10T10:30:02Z","message":"Failed to open image"}

Console Format (Development):

	10:30:00 INF Config served component=coordinator
	10:30:01 INF Hostname assigned component=allocator hostname=KXP2-CORO-001
	10:30:02 ERR Failed to open image component=images filename=kxp2_master.img error="no such file"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line
  - String field: +50ns per field
  - Int field: +30ns per field

Memory Allocation:
  - Zero allocation for disabled levels
  - ~100 bytes per log line (JSON)
  - ~200 bytes per log line (console)
  - Amortized by buffer pooling

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level in production

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or venue fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

# Log Rotation

Paddock doesn't include built-in rotation for its own process log. Use
external tools:

Logrotate (Linux):

	# /etc/logrotate.d/paddock
	/var/log/paddock/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:

	# Automatic rotation by systemd
	journalctl -u paddock -f

Note that the per-day deployment audit files written by pkg/coordinator
(deployment_YYYYMMDD.log) rotate by construction and are separate from
this package.

# Security

Log Content:
  - Never log secrets or sensitive data
  - The shared provisioning secret is never written to any log
  - Use typed fields (.Str, .Int) for device-supplied data

Log Access:
  - Restrict log file permissions (0640)
  - Review logs before sharing externally

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Include context (venue code, hostname, batch ID)

Don't:
  - Log sensitive data (secrets, auth tokens)
  - Use Debug level in production
  - Log in tight loops (the fanout ticker logs at Debug only)
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
