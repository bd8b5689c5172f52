/*
Package hooks implements spec.md §4.5: the Manager that constructs, loads
and tears down instrumentation modules against a Context.

# Dynamic lookup

Hook classes are resolved from a fully qualified name string in the
upstream. Go has no equivalent, so hook packages register a Factory under
a name via Register (typically from an init function), and Manager.Load
looks the name up at configuration-load time — the same registry pattern
pkg/imageprovider uses for providers. A name with no registered factory is
logged and skipped rather than treated as a fatal configuration error,
matching the upstream's fail-soft _load_hook.

# Configuration merge

Each hook entry may carry its own "configuration" map; the environment's
top-level "configuration" map is shared across every hook. spec.md §4.5
step 1 merges shared configuration *under* the entry's own configuration,
so an entry's key wins on collision — mergeConfiguration implements
exactly that layering without mutating either input map.

# Fail-soft construction and cleanup

A missing name, an unregistered factory, or a constructor error are all
logged and skipped; Load never aborts the remaining entries in the list.
Cleanup calls every loaded hook's Cleanup and keeps going past individual
failures, clearing the hook list once the sweep finishes either way.
*/
package hooks
