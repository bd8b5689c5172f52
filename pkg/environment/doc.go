/*
Package environment implements spec.md §4.6: the top-level scoped unit
pairing one Context (built through a seecontext.Factory) with the Hooks its
configuration names.

# Allocation and teardown

Allocate calls the factory, which itself allocates a resources.Resources
and wraps it in a Context; Environment then loads hooks against that
Context. Deallocate always runs every teardown step (hook cleanup, an
optional async-handler drain, resource release) even if an earlier one
failed, mirroring the source's cleanup() sweeping the hook manager and
context regardless of individual exceptions.

# Async handler drain

spec.md §9 leaves open whether Deallocate should wait for in-flight
asynchronous handlers before releasing resources, since the source spawns
them as daemon threads and never joins them. Config.DrainAsyncHandlers
makes that choice explicit: false reproduces the source's race, true drains
through the Context's event bus with a bounded Config.DrainTimeout.

# Configuration

LoadConfiguration accepts a map[string]any, an already-decoded
types.EnvironmentConfig, or a path to a JSON or YAML file holding the same
{"configuration": {...}, "hooks": [...]} shape, matching the source's
load_configuration helper that accepts either a dict or a path. A .yaml or
.yml path decodes with gopkg.in/yaml.v3; anything else is treated as JSON.
*/
package environment
