// Package hooks implements spec.md §4.5: an ordered list of instrumentation
// modules constructed against a Context and an environment's configuration,
// looked up dynamically by name since Go has no string-based class import.
package hooks

import (
	"sync"

	"github.com/withsecure/see-go/pkg/events"
	"github.com/withsecure/see-go/pkg/log"
	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/types"
)

// Hook is an instrumentation module that subscribes handlers to events on
// the Context it was constructed with. Cleanup is optional in spirit: a
// hook with nothing to release can make it a no-op, matching the upstream's
// hooks that simply never override cleanup().
type Hook interface {
	Cleanup() error
}

// Subscriber is the subset of *context.Context a hook needs to attach
// handlers. Declared locally rather than importing pkg/context to avoid a
// cycle (pkg/environment wires both packages together).
type Subscriber interface {
	Subscribe(event string, handler events.Handler) events.HandlerID
	SubscribeAsync(event string, handler events.Handler) events.HandlerID
}

// Parameters is the construction triple every hook factory receives,
// mirroring the upstream's HookParameters namedtuple.
type Parameters struct {
	Identifier    string
	Configuration map[string]any
	Context       Subscriber
}

// Factory constructs a Hook from Parameters. Registered factories are
// looked up by name at load time, the same dynamic dispatch
// pkg/imageprovider uses for providers (spec.md §9's "Dynamic class
// lookup" design note).
type Factory func(Parameters) (Hook, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds factory under name, overwriting any previous registration.
// Called from hook package init() functions. spec.md §9 requires that the
// resolved type satisfy the Hook interface be validated at lookup time;
// since Factory's return type is already Hook, that validation happens at
// compile time for any factory registered through this signature.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[name]
	return factory, ok
}

// Manager holds the ordered list of constructed hooks for one environment,
// mirroring the upstream's HookManager.
type Manager struct {
	identifier    string
	configuration map[string]any

	mu    sync.Mutex
	hooks []namedHook
}

type namedHook struct {
	name string
	hook Hook
}

// NewManager constructs a Manager bound to an environment's full
// configuration (the "configuration"/"hooks" shape spec.md §6 documents).
func NewManager(identifier string, configuration map[string]any) *Manager {
	return &Manager{identifier: identifier, configuration: configuration}
}

// Load constructs every configured hook against ctx, in configuration
// order. A hook entry missing a name, naming an unregistered factory, or
// failing construction is logged and skipped rather than aborting the
// remaining entries (spec.md §4.5 steps 2-3).
func (m *Manager) Load(ctx Subscriber, entries []types.HookEntry) {
	logger := log.WithEnvironmentID(m.identifier).With().Str("component", "hooks").Logger()

	for _, entry := range entries {
		if entry.Name == "" {
			logger.Warn().Msg("hook entry has no name, skipping")
			continue
		}

		config := mergeConfiguration(entry.Configuration, m.sharedConfiguration())
		m.loadOne(ctx, entry.Name, config)
	}
}

// sharedConfiguration returns the environment-wide "configuration" map
// hooks share, independent of any single entry's own configuration.
func (m *Manager) sharedConfiguration() map[string]any {
	if m.configuration == nil {
		return nil
	}
	shared, _ := m.configuration["configuration"].(map[string]any)
	return shared
}

// mergeConfiguration layers shared under entry-specific configuration:
// entry wins on key collision (spec.md §4.5 step 1). Neither input map is
// mutated.
func mergeConfiguration(entryConfig, shared map[string]any) map[string]any {
	merged := make(map[string]any, len(entryConfig)+len(shared))
	for k, v := range shared {
		merged[k] = v
	}
	for k, v := range entryConfig {
		merged[k] = v
	}
	return merged
}

func (m *Manager) loadOne(ctx Subscriber, name string, config map[string]any) {
	hookLogger := log.WithHook(name)
	hookLogger.Debug().Msg("loading hook")

	factory, ok := Lookup(name)
	if !ok {
		metrics.HooksConstructedTotal.WithLabelValues(name, "unknown").Inc()
		hookLogger.Error().Msg("hook not registered")
		return
	}

	hook, err := factory(Parameters{Identifier: m.identifier, Configuration: config, Context: ctx})
	if err != nil {
		metrics.HooksConstructedTotal.WithLabelValues(name, "error").Inc()
		hookLogger.Error().Err(err).Msg("hook initialization failed")
		return
	}

	metrics.HooksConstructedTotal.WithLabelValues(name, "success").Inc()
	m.mu.Lock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.mu.Unlock()
}

// Cleanup calls every loaded hook's Cleanup, logging and continuing past
// any individual failure (spec.md §4.5 step 5). The hook list is emptied
// afterward regardless of outcome.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	loaded := m.hooks
	m.hooks = nil
	m.mu.Unlock()

	for _, nh := range loaded {
		if err := nh.hook.Cleanup(); err != nil {
			metrics.HooksCleanupFailuresTotal.WithLabelValues(nh.name).Inc()
			log.WithHook(nh.name).Error().Err(err).Msg("hook cleanup failed")
		}
	}
}

// Len reports how many hooks are currently loaded, mainly useful in tests.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hooks)
}
