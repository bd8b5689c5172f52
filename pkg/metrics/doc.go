/*
Package metrics provides Prometheus metrics collection and exposition for the
sandboxed execution environment framework.

The metrics package defines and registers all framework metrics using the
Prometheus client library, providing observability into environment
lifecycle, event dispatch, hook construction, resource driver operations and
image resolution. Metrics are exposed via an HTTP endpoint for scraping by
Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Environment: allocated, active, duration   │          │
	│  │  Events: triggered, handler failures/latency│          │
	│  │  Context: transitions, shutdown timeouts    │          │
	│  │  Hooks: constructed, cleanup failures       │          │
	│  │  Resources: allocations, domain create,     │          │
	│  │             address allocation attempts     │          │
	│  │  Image provider: resolutions, download,     │          │
	│  │                  checksum mismatches        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: metrics.Handler()               │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Environment metrics (EnvironmentsAllocated, EnvironmentsActive,
EnvironmentAllocateDuration, EnvironmentDeallocateDuration) are updated
directly by pkg/environment's Allocate/Deallocate, not by a polling
collector: there is no central manager to poll in a single-process,
single-environment-per-call framework, so the gauge and counters are
incremented/decremented inline at the allocation call sites.

Event bus metrics (EventsTriggeredTotal, HandlerFailuresTotal,
HandlerDuration) are updated by pkg/events at trigger time, labeled by
event name and, for the two handler metrics, by dispatch mode ("sync" or
"async").

Context metrics (TransitionsTotal, TransitionDuration,
ShutdownTimeoutsTotal) are updated by pkg/context around each lifecycle
verb invocation.

Hook metrics (HooksConstructedTotal, HooksCleanupFailuresTotal) are updated
by pkg/hooks around hook construction and the fail-soft cleanup pass.

Resource driver metrics (ResourceAllocationsTotal, DomainCreateDuration,
NetworkAddressAttempts, NetworkAddressExhaustedTotal) are updated by
pkg/resources, labeled by driver name (qemu, lxc, vbox).

Image provider metrics (ImageResolutionsTotal, ImageDownloadDuration,
ImageChecksumMismatchTotal) are updated by pkg/imageprovider, labeled by
provider name.

# Usage

Exposing the metrics endpoint:

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())
	mux.HandleFunc("/livez", metrics.LivenessHandler())

Timing an operation:

	timer := metrics.NewTimer()
	err := resources.Allocate(ctx)
	timer.ObserveDurationVec(metrics.DomainCreateDuration, driverName)

Incrementing a labeled counter:

	metrics.TransitionsTotal.WithLabelValues(string(verb), outcome).Inc()

# Health Reporting

HealthChecker tracks per-component health (hypervisor connectivity, event
bus liveness, resource driver state) independently of the Prometheus
registry, exposed via HealthHandler/ReadyHandler/LivenessHandler for use
as container/orchestrator probes. RegisterComponent/UpdateComponent are
called by the component at startup and whenever its health changes;
GetReadiness treats "hypervisor", "events" and "resources" as critical —
any of them missing or unhealthy reports not_ready.
*/
package metrics
