// Package resources implements spec.md §4.3: the driver-facing contract
// a Context allocates and deallocates, and the three concrete drivers
// (qemu, lxc, vbox) that satisfy it against libvirt or containerd.
package resources

import (
	"context"
	"fmt"

	"github.com/withsecure/see-go/pkg/types"
)

// Domain is the minimal handle a driver's Domain accessor returns. Context
// only ever needs to ask a domain for its state and to drive its lifecycle
// verbs; it never needs the underlying libvirt/containerd type, so drivers
// wrap their native handle behind this interface instead of leaking it.
type Domain interface {
	// ID is the driver-native identifier (libvirt domain name, containerd
	// container ID).
	ID() string

	// State reports the domain's current lifecycle state.
	State(ctx context.Context) (types.DomainState, error)

	// MACAddress returns the first network interface's MAC address, read
	// from the domain's own definition (spec.md §4.4's memoized
	// mac_address property is implemented one layer up, in pkg/context;
	// this is the per-call read it memoizes).
	MACAddress(ctx context.Context) (string, error)

	// IPAddress returns the domain's address: the libvirt drivers read the
	// network's DHCP lease table for mac, the LXC driver reads eth0 inside
	// the container's network namespace (spec.md's SUPPLEMENTAL FEATURES #2).
	IPAddress(ctx context.Context, mac string) (string, error)

	PowerOn(ctx context.Context) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	PowerOff(ctx context.Context) error
	ForcedPowerOff(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Resources is the contract every driver satisfies. Allocate acquires the
// hypervisor connection, network, storage pool and domain named by cfg;
// Deallocate releases them in reverse order. A driver that has no concept
// of one of Hypervisor/Network/StoragePool (the LXC driver has neither a
// hypervisor connection nor a storage pool) returns nil for it rather than
// erroring, matching the upstream base class's NotImplementedError
// properties being optional for subclasses that simply never call them.
type Resources interface {
	Allocate(ctx context.Context) error
	Deallocate(ctx context.Context) error

	Hypervisor() any
	Domain() Domain
	Network() any
	StoragePool() any
}

// Execer is satisfied by any Resources driver that can run a command
// inside the workload it manages (currently only the LXC driver). A
// caller that wants to wrap it in a health.ExecChecker type-asserts a
// Resources value to Execer rather than importing the concrete driver.
type Execer interface {
	Exec(ctx context.Context, containerID string, command []string) (stdout, stderr []byte, err error)
}

// Driver name constants, used as the "driver" label on metrics and as the
// hypervisor value dispatched on by pkg/context's factories.
const (
	DriverQEMU = "qemu"
	DriverLXC  = "lxc"
	DriverVBox = "vbox"
)

// New constructs the driver named by cfg.Hypervisor.
func New(cfg types.ResourcesConfig, identifier string) (Resources, error) {
	switch cfg.Hypervisor {
	case DriverQEMU:
		return NewQEMUResources(cfg, identifier)
	case DriverLXC:
		return NewLXCResources(cfg, identifier)
	case DriverVBox:
		return NewVBoxResources(cfg, identifier)
	default:
		return nil, fmt.Errorf("%w: unknown hypervisor %q", types.ErrResourceUnavailable, cfg.Hypervisor)
	}
}
