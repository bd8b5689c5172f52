/*
Package context implements spec.md §4.4: the lifecycle state machine that
sits between an environment and its resources.Resources driver.

# Transitions

Every verb (PowerOn, Resume, Pause, PowerOff, ForcedPowerOff, Shutdown,
Restart) follows the same sequence: read the domain's current state, check
types.DomainState.Allows(verb) against types.TransitionMap, trigger
pre_<verb>, run the driver's corresponding Domain method, trigger
post_<verb>. An illegal transition never triggers either event and returns
types.ErrInvalidTransition, matching the upstream's _assert_transition
raising before _command does anything observable.

Shutdown additionally polls the domain's state after requesting an ACPI
shutdown, since a guest OS is not guaranteed to honor it promptly. Unlike
the upstream (which busy-waits forever when no timeout is given), a zero
timeout here still waits indefinitely but a positive one now returns
types.ErrShutdownTimeout instead of blocking past it — ctx cancellation is
checked the same way, so a caller's own deadline also unblocks the wait.

# Memoized addresses

MACAddress and IP4Address cache their first successful read for the life
of the Context, matching the upstream's _mac_address/_ip4_address fields.
The actual preference order (a live guest-agent/ARP read falling back to
the network's DHCP lease table) lives in each driver's Domain.IPAddress
implementation in pkg/resources, not here: this package only knows to ask
once and remember the answer.

# Events

Context embeds *events.Bus directly rather than wrapping it, so hooks
subscribe to a Context exactly as they would to any other Bus owner.
Trigger's source argument is always the Context itself, letting a handler
call back into it (e.g. to read IP4Address) without a separate lookup.

# Factories

QEMUFactory/LXCFactory/VBoxFactory build a resources.Resources via
resources.New, call Allocate, and on failure call Deallocate before
propagating the error — ported from the upstream's
QEMUContextFactory/LXCContextFactory/VBoxContextFactory, which all share
the same try/except resources.deallocate()/raise body. A caller only
gets a *Context once its driver's resources are already fully allocated.
*/
package context
