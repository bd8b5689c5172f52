/*
Package types defines the shared data structures used throughout the
sandboxed execution environment framework: domain lifecycle states and
transitions, driver-facing resource configuration, hook/environment
configuration shapes, image descriptors, and the sentinel error kinds every
other package wraps with fmt.Errorf and compares with errors.Is.

# Architecture

types has no dependency on any other package in this module, by design:
events, resources, context, hooks and environment all import it, so it
must stay a leaf to avoid import cycles.

It defines:

  - DomainState and the verb TransitionMap (spec.md §4.4)
  - ResourcesConfig and its nested Disk/Network/Domain sections
    (spec.md §6 "Resources configuration")
  - EnvironmentConfig and HookEntry (spec.md §6 "Configuration format")
  - ImageDescriptor (spec.md §3 "Image descriptor")
  - The Err* sentinels (spec.md §7 "Error kinds")

# Error kinds

Every package wraps one of the Err* sentinels with additional context via
fmt.Errorf("%w: ...", ErrX) and callers use errors.Is to test for a kind
without caring which package raised it.
*/
package types
