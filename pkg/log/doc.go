/*
Package log provides structured logging for the sandboxed execution
environment framework using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

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
	│  │  - WithComponent("resources")                │          │
	│  │  - WithEnvironmentID("env-abc123")           │          │
	│  │  - WithEvent("post_poweron")                 │          │
	│  │  - WithHook("network-share")                 │          │
	│  │  - WithDriver("qemu")                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "context",                  │          │
	│  │    "environment_id": "env-abc123",          │          │
	│  │    "time": "2026-07-30T10:30:00Z",         │          │
	│  │    "message": "poweron complete"            │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-30T10:30:00Z INF poweron complete environment_id=env-abc123 │ │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all framework packages
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
  - WithComponent: Add component name to all logs (e.g. "events", "hooks")
  - WithEnvironmentID: Add the environment identifier to all logs
  - WithEvent: Add the event name a handler is reacting to
  - WithHook: Add the hook name currently being constructed or cleaned up
  - WithDriver: Add the resource driver name (qemu, lxc, vbox)

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Example: "dispatching async handler" event=post_poweron hook=audit-log

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Example: "environment allocated" environment_id=env-abc123 driver=qemu

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Fail-soft hook/handler failures that do not abort the caller
  - Example: "hook cleanup failed, continuing" hook=network-share

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed lifecycle transitions, allocation failures
  - Example: "failed to allocate resources: image not found"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to initialize logger output: %v"

# Usage

Initializing the Logger:

	import "github.com/withsecure/see-go/pkg/log"

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
	file, _ := os.OpenFile("/var/log/seectl.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("environment allocated")
	log.Debug("checking domain state")
	log.Warn("hook cleanup failed")
	log.Error("failed to connect to hypervisor")
	log.Fatal("cannot start without a configuration file") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("environment_id", "env-abc123").
		Str("driver", "qemu").
		Msg("resources allocated")

	log.Logger.Error().
		Err(err).
		Str("environment_id", "env-abc123").
		Msg("poweron failed")

Component Loggers:

	// Create component-specific logger
	eventsLog := log.WithComponent("events")
	eventsLog.Info().Msg("bus started")
	eventsLog.Debug().Str("event", "pre_poweron").Msg("dispatching sync handlers")

	// Multiple context fields
	ctxLog := log.WithComponent("context").
		With().Str("environment_id", "env-abc123").
		Str("driver", "qemu").Logger()
	ctxLog.Info().Msg("transition allowed")
	ctxLog.Error().Err(err).Msg("transition failed")

Context Logger Helpers:

	// Environment-specific logs
	envLog := log.WithEnvironmentID("env-abc123")
	envLog.Info().Msg("allocation started")

	// Event-specific logs
	evLog := log.WithEvent("post_shutdown")
	evLog.Debug().Msg("handler invoked")

	// Hook-specific logs
	hookLog := log.WithHook("network-share")
	hookLog.Warn().Err(err).Msg("cleanup failed, continuing")

	// Driver-specific logs
	drvLog := log.WithDriver("qemu")
	drvLog.Info().Msg("domain created")

Complete Example:

	package main

	import (
		"errors"
		"os"

		"github.com/withsecure/see-go/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("seectl starting")

		// Component-specific logging
		resLog := log.WithComponent("resources")
		resLog.Info().
			Str("driver", "qemu").
			Msg("allocating resources")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "resources").
			Msg("failed to connect to hypervisor")

		log.Info("seectl stopped")
	}

# Integration Points

This package integrates with:

  - pkg/events: Logs handler dispatch and handler failures
  - pkg/context: Logs lifecycle transitions and command failures
  - pkg/resources: Logs allocate/deallocate and driver-specific operations
  - pkg/hooks: Logs hook construction and fail-soft cleanup
  - pkg/environment: Logs environment allocation and deallocation
  - pkg/imageprovider: Logs image resolution and download verification

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"environment","environment_id":"env-abc123","time":"2026-07-30T10:30:00Z","message":"allocation started"}
	{"level":"info","component":"resources","driver":"qemu","time":"2026-07-30T10:30:01Z","message":"domain created"}
	{"level":"error","component":"context","environment_id":"env-abc123","error":"invalid transition","time":"2026-07-30T10:30:02Z","message":"poweron rejected"}

Console Format (Development):

	2026-07-30T10:30:00Z INF allocation started component=environment environment_id=env-abc123
	2026-07-30T10:30:01Z INF domain created component=resources driver=qemu
	2026-07-30T10:30:02Z ERR poweron rejected component=context environment_id=env-abc123 error="invalid transition"

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
  - Errors are wrapped with fmt.Errorf("%w", ...) before they reach a log
    call, so the logged error string already carries its chain of context
  - Consistent error format across the codebase

# Troubleshooting

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Missing Context Fields:
  - Symptom: Logs missing component or ID fields
  - Cause: Using global Logger instead of a context logger
  - Solution: Use WithComponent() or one of the WithX() helpers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Solution: Use .Str() instead of string interpolation

# Security

Log Content:
  - Never log secrets or sensitive data
  - Image provider credentials and hook configuration may contain secrets;
    log their keys, not their values
  - Restrict log file permissions in production deployments
*/
package log
