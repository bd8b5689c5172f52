// Package context implements spec.md §4.4: the lifecycle state machine
// wrapped around a resources.Resources driver, triggering pre_*/post_*
// events around every verb and enforcing the transition table a domain's
// current state allows.
package context

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/withsecure/see-go/pkg/events"
	"github.com/withsecure/see-go/pkg/log"
	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/resources"
	"github.com/withsecure/see-go/pkg/types"
)

// ShutdownPollInterval is how often Shutdown polls the domain's state
// while waiting for a guest-initiated clean shutdown to complete.
const ShutdownPollInterval = 100 * time.Millisecond

// Context wraps a resources.Resources driver with the lifecycle verbs,
// event triggering and memoized network address reads spec.md §4.4
// describes. It embeds an *events.Bus as its Observable: hooks subscribe
// to it the same way anything else subscribes to a Bus.
type Context struct {
	*events.Bus

	identifier string
	resources  resources.Resources

	mu         sync.Mutex
	macAddress string
	ip4Address string
}

// New wraps an already-allocated resources.Resources. Callers normally go
// through one of the driver-specific factories below instead of calling
// this directly.
func New(identifier string, r resources.Resources) *Context {
	return &Context{
		Bus:        events.NewBus(),
		identifier: identifier,
		resources:  r,
	}
}

// ID is the environment identifier this Context was constructed with.
func (c *Context) ID() string { return c.identifier }

// Cleanup releases the underlying resources. It does not drain the event
// bus; callers that need in-flight async handlers to finish first call
// Drain explicitly (spec.md §5's DrainAsyncHandlers).
func (c *Context) Cleanup(ctx context.Context) error {
	return c.resources.Deallocate(ctx)
}

// Resources exposes the underlying driver itself, for a caller that needs
// a capability beyond the four accessors below (health.ExecChecker wiring
// against a driver that implements resources.Execer, for instance).
func (c *Context) Resources() resources.Resources { return c.resources }

// Hypervisor, Domain, Network and StoragePool forward to the underlying
// driver. Domain is mutex-guarded because, unlike the others, it is read
// on every lifecycle verb and by the memoized address properties below.
func (c *Context) Hypervisor() any { return c.resources.Hypervisor() }

func (c *Context) Domain() resources.Domain {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resources.Domain()
}

func (c *Context) Network() any     { return c.resources.Network() }
func (c *Context) StoragePool() any { return c.resources.StoragePool() }

// MACAddress returns the first network interface's MAC address, read once
// from the domain's own definition and memoized for the life of the
// Context (spec.md §4.4, SUPPLEMENTAL FEATURES #2).
func (c *Context) MACAddress(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.macAddress != "" {
		return c.macAddress, nil
	}

	dom := c.resources.Domain()
	if dom == nil {
		return "", fmt.Errorf("%w: driver has no domain handle", types.ErrResourceUnavailable)
	}
	mac, err := dom.MACAddress(ctx)
	if err != nil {
		return "", err
	}
	c.macAddress = mac
	return mac, nil
}

// IP4Address returns the address leased to the domain's MAC address,
// memoized after the first successful read. A guest-agent/live read is
// preferred by the driver's Domain.IPAddress implementation; falling back
// to the network's DHCP lease table when that is unavailable is the
// driver's concern, not this package's.
func (c *Context) IP4Address(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.ip4Address
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	mac, err := c.MACAddress(ctx)
	if err != nil {
		return "", err
	}

	dom := c.resources.Domain()
	if dom == nil {
		return "", fmt.Errorf("%w: driver has no domain handle", types.ErrResourceUnavailable)
	}
	addr, err := dom.IPAddress(ctx, mac)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.ip4Address = addr
	c.mu.Unlock()
	return addr, nil
}

// PowerOn, Resume, Pause, PowerOff, ForcedPowerOff and Restart each assert
// the transition is legal from the domain's current state, trigger
// pre_<verb>, run the driver's lifecycle method, then trigger post_<verb>.
func (c *Context) PowerOn(ctx context.Context, data types.LifecyclePayload) error {
	return c.command(ctx, types.VerbPowerOn, data, resources.Domain.PowerOn)
}

func (c *Context) Resume(ctx context.Context, data types.LifecyclePayload) error {
	return c.command(ctx, types.VerbResume, data, resources.Domain.Resume)
}

func (c *Context) Pause(ctx context.Context, data types.LifecyclePayload) error {
	return c.command(ctx, types.VerbPause, data, resources.Domain.Pause)
}

func (c *Context) PowerOff(ctx context.Context, data types.LifecyclePayload) error {
	return c.command(ctx, types.VerbPowerOff, data, resources.Domain.PowerOff)
}

func (c *Context) ForcedPowerOff(ctx context.Context, data types.LifecyclePayload) error {
	return c.command(ctx, types.VerbForcedPowerOff, data, resources.Domain.ForcedPowerOff)
}

func (c *Context) Restart(ctx context.Context, data types.LifecyclePayload) error {
	return c.command(ctx, types.VerbRestart, data, resources.Domain.Restart)
}

// Shutdown sends the guest an ACPI shutdown request and polls until the
// domain reports DomainShutoff or timeout elapses. A zero timeout waits
// indefinitely, matching the upstream's timeout=None meaning "wait
// forever"; spec.md §4.4 wants a bounded wait to raise
// types.ErrShutdownTimeout instead of blocking forever when the guest OS
// never acts on the ACPI request.
func (c *Context) Shutdown(ctx context.Context, timeout time.Duration, data types.LifecyclePayload) error {
	verb := types.VerbShutdown
	dom, err := c.assertTransition(ctx, verb)
	if err != nil {
		return err
	}

	c.Trigger(preEvent(verb), c, data)
	timer := metrics.NewTimer()

	if err := dom.Shutdown(ctx); err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(verb), "error").Inc()
		return fmt.Errorf("%w: %v", types.ErrOperationFailed, err)
	}

	if err := c.waitForShutoff(ctx, dom, timeout); err != nil {
		metrics.ShutdownTimeoutsTotal.Inc()
		metrics.TransitionsTotal.WithLabelValues(string(verb), "timeout").Inc()
		return err
	}

	metrics.TransitionsTotal.WithLabelValues(string(verb), "success").Inc()
	timer.ObserveDurationVec(metrics.TransitionDuration, string(verb))
	c.Trigger(postEvent(verb), c, data)
	return nil
}

func (c *Context) waitForShutoff(ctx context.Context, dom resources.Domain, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(ShutdownPollInterval)
	defer ticker.Stop()

	for {
		state, err := dom.State(ctx)
		if err != nil {
			return fmt.Errorf("failed to read domain state: %w", err)
		}
		if state == types.DomainShutoff {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", types.ErrShutdownTimeout, ctx.Err())
		case <-deadline:
			return fmt.Errorf("%w: domain did not shut down within the configured timeout", types.ErrShutdownTimeout)
		case <-ticker.C:
		}
	}
}

// command implements the pre_*/assert/execute/post_* sequence shared by
// every verb except Shutdown, which additionally polls for completion.
// action is a method expression on resources.Domain (e.g.
// resources.Domain.PowerOn) rather than a method value bound at the call
// site, so the caller never forms a method on a domain handle that might
// turn out to be nil.
func (c *Context) command(ctx context.Context, verb types.Verb, data types.LifecyclePayload, action func(resources.Domain, context.Context) error) error {
	dom, err := c.assertTransition(ctx, verb)
	if err != nil {
		return err
	}

	c.Trigger(preEvent(verb), c, data)
	timer := metrics.NewTimer()

	if err := action(dom, ctx); err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(verb), "error").Inc()
		return fmt.Errorf("%w: %v", types.ErrOperationFailed, err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(verb), "success").Inc()
	timer.ObserveDurationVec(metrics.TransitionDuration, string(verb))
	c.Trigger(postEvent(verb), c, data)
	return nil
}

// assertTransition resolves the current domain handle, fails
// resource-unavailable if the driver has none to offer (spec.md §4.3's
// liveness guard), and otherwise checks the verb is legal from the
// domain's current state.
func (c *Context) assertTransition(ctx context.Context, verb types.Verb) (resources.Domain, error) {
	dom := c.Domain()
	if dom == nil {
		return nil, fmt.Errorf("%w: driver has no domain handle", types.ErrResourceUnavailable)
	}

	state, err := dom.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain state: %w", err)
	}
	if !state.Allows(verb) {
		metrics.TransitionsTotal.WithLabelValues(string(verb), "rejected").Inc()
		return nil, fmt.Errorf("%w: %s not allowed from state %s", types.ErrInvalidTransition, verb, state)
	}
	return dom, nil
}

func preEvent(verb types.Verb) string  { return "pre_" + string(verb) }
func postEvent(verb types.Verb) string { return "post_" + string(verb) }

// Factory constructs a Context for a freshly allocated environment,
// deallocating the underlying resources.Resources if allocation fails
// partway through (the upstream's try/except resources.deallocate()/raise
// pattern in each *ContextFactory.__call__).
type Factory func(ctx context.Context, identifier string) (*Context, error)

// NewFactory returns a Factory bound to cfg. cfg.Hypervisor selects which
// resources.New driver constructor backs the returned Context; it is
// ordinarily one of resources.DriverQEMU/DriverLXC/DriverVBox.
func NewFactory(cfg types.ResourcesConfig) Factory {
	return func(ctx context.Context, identifier string) (*Context, error) {
		r, err := resources.New(cfg, identifier)
		if err != nil {
			return nil, err
		}

		if err := r.Allocate(ctx); err != nil {
			if derr := r.Deallocate(ctx); derr != nil {
				log.WithEnvironmentID(identifier).Warn().Err(derr).Msg("failed to deallocate resources after a failed allocation")
			}
			return nil, fmt.Errorf("%w: %v", types.ErrResourceUnavailable, err)
		}

		return New(identifier, r), nil
	}
}

// QEMUFactory, LXCFactory and VBoxFactory are convenience constructors
// mirroring the upstream's QEMUContextFactory/LXCContextFactory/
// VBoxContextFactory: cfg.Hypervisor is forced to the matching driver name
// so a caller cannot mismatch the factory it picked and the driver its
// configuration names.
func QEMUFactory(cfg types.ResourcesConfig) Factory {
	cfg.Hypervisor = resources.DriverQEMU
	return NewFactory(cfg)
}

func LXCFactory(cfg types.ResourcesConfig) Factory {
	cfg.Hypervisor = resources.DriverLXC
	return NewFactory(cfg)
}

func VBoxFactory(cfg types.ResourcesConfig) Factory {
	cfg.Hypervisor = resources.DriverVBox
	return NewFactory(cfg)
}
