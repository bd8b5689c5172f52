/*
Package events implements the Observer/Observable event bus at the core of
the sandboxed execution environment framework.

Every sandbox-facing component (the Context state machine, the Environment,
a Hook) owns a Bus. Components register Handlers for named events
(pre_poweron, post_poweron, pre_shutdown, post_shutdown, ...) either
synchronously or asynchronously, and the component Triggers those events as
its lifecycle commands run.

# Architecture

	┌──────────────────────── EVENT BUS ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │                  Bus                        │          │
	│  │  - sync_:  map[event][]subscription          │          │
	│  │  - async:  map[event][]subscription          │          │
	│  │  - wg:     tracks in-flight async handlers   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │               Trigger(event)                │          │
	│  │                                              │          │
	│  │  1. lock, snapshot sync_[event] and          │          │
	│  │     async[event], unlock                    │          │
	│  │  2. dispatch each async handler on its own  │          │
	│  │     goroutine (wg.Add/Done)                 │          │
	│  │  3. invoke each sync handler inline, in     │          │
	│  │     registration order                      │          │
	│  │  4. a handler's error or panic is logged    │          │
	│  │     and counted, never re-raised             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │               Drain(ctx)                    │          │
	│  │  blocks for in-flight async handlers to     │          │
	│  │  finish, or until ctx is done                │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Why snapshot-and-release instead of a re-entrant lock

The upstream design this framework is ported from guards its handler lists
with a re-entrant mutex, so a handler that triggers a further event on the
same bus does not deadlock against its own dispatch. Go's sync.Mutex is not
re-entrant, and there is no standard re-entrant alternative in the
ecosystem this framework draws on. Trigger gets the same non-deadlocking
behavior a different way: it holds the lock only long enough to copy the
handler slices, releases it, and only then invokes them. A handler that
calls Trigger again (on the same Bus, for a different or even the same
event) only ever contends for the lock during its own brief snapshot, never
while another Trigger's handlers are running.

# Synchronous vs. asynchronous handlers

Synchronous handlers run inline, in registration order, on the goroutine
that called Trigger. They are appropriate for handlers whose side effects
the caller needs to have landed before Trigger returns (audit logging that
must not be lost, a hook that mutates the context before the next command
runs).

Asynchronous handlers are dispatched to their own goroutine immediately
and do not block Trigger or each other. Trigger returns without waiting for
them. A caller that needs to know asynchronous work has finished (for
example, an Environment about to deallocate resources a handler still
references) calls Bus.Drain with a context carrying a deadline; Drain
returns the context's error if the deadline elapses before every
outstanding async handler has returned.

# Handler identity

Subscribe and SubscribeAsync return a HandlerID. Go function values are not
comparable, so there is no way to ask "is this the same handler" the way
the Python original does by comparing bound methods; the HandlerID is the
only handle by which Unsubscribe can remove a specific registration.
Unsubscribe checks the synchronous list first and falls back to the
asynchronous list, matching the upstream removal order. Unsubscribing an
unknown or already-removed HandlerID returns types.ErrNotSubscribed.

# Event payload

An Event carries Name (the event being triggered), Source (the value the
caller passed to Trigger — typically the *context.Context that owns the Bus),
and Data, the caller-supplied keyword arguments of the lifecycle verb that
triggered it. Handlers that need the verb's arguments (a custom shutdown
timeout, a hook's own per-call options) read them out of Data.

# Failure isolation

A handler's returned error, or a panic it raises, is caught at the
invocation site, logged via pkg/log with the event name and dispatch mode,
counted in pkg/metrics's HandlerFailuresTotal, and then dropped: it never
stops the remaining handlers for that Trigger call and never propagates to
the component that called Trigger. This matches spec.md §7's
"handler-failed never aborts dispatch, and never surfaces past the bus's
delivery site."
*/
package events
