package types

import "time"

// DomainState mirrors libvirt's virDomainState values. The numeric values
// match libvirt's wire encoding so a driver can cast directly from a
// DomainGetState reply.
type DomainState int

const (
	DomainNoState   DomainState = 0
	DomainRunning   DomainState = 1
	DomainBlocked   DomainState = 2
	DomainPaused    DomainState = 3
	DomainShutdown  DomainState = 4
	DomainShutoff   DomainState = 5
	DomainCrashed   DomainState = 6
	DomainSuspended DomainState = 7
)

func (s DomainState) String() string {
	switch s {
	case DomainNoState:
		return "nostate"
	case DomainRunning:
		return "running"
	case DomainBlocked:
		return "blocked"
	case DomainPaused:
		return "paused"
	case DomainShutdown:
		return "shutdown"
	case DomainShutoff:
		return "shutoff"
	case DomainCrashed:
		return "crashed"
	case DomainSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Verb is a lifecycle verb understood by the Context state machine.
type Verb string

const (
	VerbPowerOn        Verb = "poweron"
	VerbResume         Verb = "resume"
	VerbPause          Verb = "pause"
	VerbPowerOff       Verb = "poweroff"
	VerbForcedPowerOff Verb = "forced_poweroff"
	VerbShutdown       Verb = "shutdown"
	VerbRestart        Verb = "restart"
)

// TransitionMap lists, for every DomainState, the verbs permitted to
// initiate from it. See spec.md §4.4.
var TransitionMap = map[DomainState][]Verb{
	DomainNoState:   {},
	DomainRunning:   {VerbPause, VerbPowerOff, VerbForcedPowerOff, VerbRestart, VerbShutdown},
	DomainBlocked:   {},
	DomainPaused:    {VerbResume, VerbForcedPowerOff},
	DomainShutdown:  {VerbPowerOn},
	DomainShutoff:   {VerbPowerOn},
	DomainCrashed:   {VerbPowerOn},
	DomainSuspended: {VerbResume},
}

// Allows reports whether verb may be initiated from state.
func (s DomainState) Allows(verb Verb) bool {
	for _, v := range TransitionMap[s] {
		if v == verb {
			return true
		}
	}
	return false
}

// FilesystemMount is an LXC-driver bind-mount descriptor: source_path is a
// directory on the host that gets a per-environment subdirectory created
// under it, target_path is where it is visible from inside the sandbox.
type FilesystemMount struct {
	SourcePath string
	TargetPath string
}

// DiskConfig is the "disk" section of a Resources configuration.
type DiskConfig struct {
	// Image is either a bare path (string) or an image descriptor (map),
	// resolved by pkg/imageprovider. Concretely *string or map[string]any.
	Image any
	Clone *CloneConfig
}

// CloneConfig requests the QEMU driver to clone the resolved image into a
// dedicated storage pool instead of booting the resolved image directly.
type CloneConfig struct {
	StoragePoolPath string
	CopyOnWrite     bool
}

// DynamicAddressConfig requests the QEMU driver to allocate a random
// unused subnet for the environment's libvirt network.
type DynamicAddressConfig struct {
	IPv4         string
	Prefix       int
	SubnetPrefix int
}

// NetworkConfig is the "network" section of a Resources configuration.
type NetworkConfig struct {
	ConfigurationPath string
	DynamicAddress    *DynamicAddressConfig
}

// DomainConfig is the "domain" section of a Resources configuration.
type DomainConfig struct {
	ConfigurationPath string
	Filesystem        []FilesystemMount
}

// ResourcesConfig is the full driver-specific configuration passed to a
// context factory, matching spec.md §6's "Resources configuration" shape.
type ResourcesConfig struct {
	Hypervisor    string
	HypervisorURI string
	Domain        DomainConfig
	Disk          DiskConfig
	Network       *NetworkConfig
}

// HookEntry is one element of the "hooks" list in an environment
// configuration.
type HookEntry struct {
	Name          string
	Configuration map[string]any
}

// EnvironmentConfig is the full JSON-shaped configuration accepted by
// environment.New, matching spec.md §6.
type EnvironmentConfig struct {
	Configuration map[string]any
	Hooks         []HookEntry
}

// ImageDescriptor resolves an image reference to a local path. A bare Path
// is the backward-compatible shortcut (spec.md §4.2): returned verbatim,
// no verification. Provider/URI/Name/ProviderConfiguration describe a
// pluggable resolution.
type ImageDescriptor struct {
	Path                 string
	Provider             string
	URI                  string
	Name                 string
	ProviderConfiguration map[string]any
}

// IsBarePath reports whether the descriptor is the backward-compatible
// bare-path shortcut rather than a provider descriptor.
func (d ImageDescriptor) IsBarePath() bool {
	return d.Provider == "" && d.Path != ""
}

// HandlerParameters is the triple passed to every hook constructor
// (identifier, configuration, context), per spec.md §3.
type HandlerParameters struct {
	Identifier    string
	Configuration map[string]any
	Context       any
}

// LifecyclePayload carries the caller-supplied keyword arguments of a
// lifecycle verb invocation through to its pre_*/post_* events.
type LifecyclePayload map[string]any

// Timestamp is a small helper alias kept for readability in event payloads.
type Timestamp = time.Time
