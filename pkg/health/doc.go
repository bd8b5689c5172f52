/*
Package health provides liveness checking for the resources a sandboxed
execution environment depends on: the hypervisor connection, the domain
or container running inside it, and (optionally) a workload endpoint a
hook wants to probe before declaring an environment ready.

This package implements three checker types: HTTP, TCP, and Exec.
pkg/resources's libvirt-backed drivers (qemu, vbox) invoke TCPChecker
automatically through liveness.go's libvirtConnectionAlive whenever a
ResourcesConfig.HypervisorURI points at a remote libvirtd, guarding the
Hypervisor/Domain/Network/StoragePool accessors against a connection the
remote end has already dropped. The state machine's own transition map and
the hypervisor's own reply remain the authoritative source of domain state
(spec.md §4.4); TCPChecker only decides whether a handle is worth handing
back at all. HTTPChecker and ExecChecker are not wired to any automatic
call site — they exist for a caller that wants an independent,
deadline-bounded probe of the workload itself: a hook deciding whether to
keep retrying before giving up, or an operator-facing CLI command.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                   Health Check System                       │
	└─────┬──────────────────────────────────────────────────────┘
	      │
	      ▼
	┌──────────────────────────────────────────────────────────────┐
	│                     Checker Interface                        │
	│  • Check(ctx) Result                                         │
	│  • Type() CheckType                                          │
	└────────┬─────────────────────────────────────────────────────┘
	         │
	    ┌────┴──────┬──────────┐
	    ▼           ▼          ▼
	┌────────┐  ┌──────┐  ┌────────┐
	│  HTTP  │  │ TCP  │  │  Exec  │
	│Checker │  │Checker│ │Checker │
	└────────┘  └──────┘  └────────┘
	     │          │          │
	     ▼          ▼          ▼
	  GET /     Connect      Run cmd
	  /health   hypervisor   in container
	  endpoint  endpoint     (LXC driver)

## Health Check Flow

 1. Caller creates a Checker appropriate to what it wants to probe.
 2. Caller wraps repeated Check calls with a Status, which tracks
    consecutive successes/failures and applies the Retries threshold from
    Config before flipping Healthy.
 3. StartPeriod lets a caller ignore failures while a domain is still
    booting.

# Core Components

Checker: the common interface. Check(ctx) runs one probe and returns a
Result; Type() identifies which kind of checker produced it.

TCPChecker: dials Address (host:port) with a timeout. In this framework
pkg/resources uses it to probe a remote libvirtd endpoint (the host:port
of a qemu+tcp:// or qemu+tls:// URI) before handing back a handle on that
connection.

HTTPChecker: issues an HTTP request and checks the response status falls
within [ExpectedStatusMin, ExpectedStatusMax]. Useful for a hook that waits
for a workload's own health endpoint to come up inside the sandbox before
the Environment is considered ready for use.

ExecChecker: runs a command and inspects its exit code. With ContainerID
unset it runs on the host (useful in tests); with ContainerID set it
requires an Execer (a ContainerExecer function) to actually reach into the
container, since pkg/health does not import pkg/resources and cannot talk
to containerd directly. The LXC driver supplies one.

Status: tracks ConsecutiveFailures/ConsecutiveSuccesses against a Config's
Retries threshold and exposes InStartPeriod to suppress false negatives
while a domain is still coming up.

# Usage

Probing a QEMU driver's hypervisor connection before allocating:

	checker := health.NewTCPChecker("127.0.0.1:16509").WithTimeout(2 * time.Second)
	result := checker.Check(ctx)
	if !result.Healthy {
		return fmt.Errorf("%w: %s", types.ErrResourceUnavailable, result.Message)
	}

Tracking repeated checks with a Status:

	status := health.NewStatus()
	cfg := health.DefaultConfig()
	for {
		result := checker.Check(ctx)
		status.Update(result, cfg)
		if !status.Healthy && !status.InStartPeriod(cfg) {
			break
		}
		time.Sleep(cfg.Interval)
	}

Probing a container's workload via the LXC driver (cmd/seectl's
--ready-exec-cmd flag does exactly this after a "poweron" verb, type
asserting a seecontext.Context's Resources() against resources.Execer):

	execer := see.Resources().(resources.Execer)
	checker := health.NewExecChecker([]string{"true"}).WithContainer(containerID)
	checker.Execer = execer.Exec
	result := checker.Check(ctx)
*/
package health
