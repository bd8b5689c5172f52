package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/withsecure/see-go/pkg/log"
	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/types"
)

// Event is the value passed to every handler subscribed to Name. Source is
// the Observable that triggered it (typically a *context.Context-equivalent
// sandbox handle); Data carries the caller-supplied keyword arguments of the
// lifecycle verb that triggered the event (spec.md §4.1/§3).
type Event struct {
	Name   string
	Source any
	Data   map[string]any
}

// Handler reacts to an Event. An error return, from a synchronous or an
// asynchronous handler alike, is logged and counted in
// metrics.HandlerFailuresTotal; it never reaches the Trigger caller and
// Trigger itself never fails because one handler failed (spec.md §7,
// "handler-failed never aborts dispatch").
type Handler func(Event) error

// HandlerID identifies a single subscription, returned by Subscribe and
// SubscribeAsync, and is the only way to remove a handler: Go func values
// are not comparable, so there is no Python-style "remove by identity"
// available for the underlying function.
type HandlerID uint64

type subscription struct {
	id HandlerID
	fn Handler
}

// Bus is an Observable/Observatory combined: it is both the registry of
// per-event handler lists and the dispatcher that triggers them. Each
// sandbox component holds its own Bus (spec.md's Context is one). The
// Source of each Event is whatever the caller passes to Trigger; a
// Context passes itself.
//
// Trigger does not hold its lock while invoking handlers. It snapshots the
// sync and async handler lists for the event under the lock, releases the
// lock, and only then invokes them. This gives the same safety a
// re-entrant mutex would (a handler that triggers a further event on the
// same Bus cannot deadlock against its own dispatch) without requiring one,
// which Go's sync.Mutex is not (spec.md §4.1, §9).
type Bus struct {
	mu     sync.Mutex
	sync_  map[string][]subscription
	async  map[string][]subscription
	nextID uint64
	wg     sync.WaitGroup
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		sync_: make(map[string][]subscription),
		async: make(map[string][]subscription),
	}
}

// Subscribe registers h to run inline, on the triggering goroutine, every
// time event is triggered.
func (b *Bus) Subscribe(event string, h Handler) HandlerID {
	id := HandlerID(atomic.AddUint64(&b.nextID, 1))
	b.mu.Lock()
	b.sync_[event] = append(b.sync_[event], subscription{id: id, fn: h})
	b.mu.Unlock()
	return id
}

// SubscribeAsync registers h to run on its own goroutine every time event is
// triggered. Async handlers never block Trigger or each other.
func (b *Bus) SubscribeAsync(event string, h Handler) HandlerID {
	id := HandlerID(atomic.AddUint64(&b.nextID, 1))
	b.mu.Lock()
	b.async[event] = append(b.async[event], subscription{id: id, fn: h})
	b.mu.Unlock()
	return id
}

// Unsubscribe removes id from event. It looks in the synchronous list
// first and falls back to the asynchronous list, matching the upstream
// removal order (spec.md §4.1's "sync first, then async" note). It returns
// types.ErrNotSubscribed if id is registered under neither.
func (b *Bus) Unsubscribe(event string, id HandlerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.sync_[event]; ok {
		if idx := indexOf(subs, id); idx >= 0 {
			b.sync_[event] = removeAt(subs, idx)
			return nil
		}
	}
	if subs, ok := b.async[event]; ok {
		if idx := indexOf(subs, id); idx >= 0 {
			b.async[event] = removeAt(subs, idx)
			return nil
		}
	}
	return types.ErrNotSubscribed
}

// Trigger fires event against every handler subscribed to it. Synchronous
// handlers run inline, in registration order, on the calling goroutine;
// asynchronous handlers are dispatched to their own goroutine and tracked so
// Drain can wait for them. A handler's error (or panic, which is recovered
// and converted to an error) is logged and counted; it never stops the
// remaining handlers or propagates to the caller.
func (b *Bus) Trigger(event string, source any, data map[string]any) {
	b.mu.Lock()
	syncHandlers := append([]subscription(nil), b.sync_[event]...)
	asyncHandlers := append([]subscription(nil), b.async[event]...)
	b.mu.Unlock()

	ev := Event{Name: event, Source: source, Data: data}
	metrics.EventsTriggeredTotal.WithLabelValues(event).Inc()

	for _, s := range asyncHandlers {
		b.wg.Add(1)
		go func(s subscription) {
			defer b.wg.Done()
			invoke(event, "async", s.fn, ev)
		}(s)
	}

	for _, s := range syncHandlers {
		invoke(event, "sync", s.fn, ev)
	}
}

// Drain blocks until every in-flight asynchronous handler dispatched by a
// prior Trigger call has returned, or ctx is done, whichever comes first.
// It is the resolution of spec.md §5's "should deallocate wait for async
// handlers" open question: callers that care opt in explicitly by calling
// Drain before deallocating (see pkg/environment's DrainAsyncHandlers).
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func invoke(event, mode string, fn Handler, ev Event) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.HandlerDuration, event, mode)

	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerFailuresTotal.WithLabelValues(event, mode).Inc()
			log.WithEvent(event).Error().
				Interface("panic", r).
				Str("mode", mode).
				Msg("handler panicked")
		}
	}()

	if err := fn(ev); err != nil {
		metrics.HandlerFailuresTotal.WithLabelValues(event, mode).Inc()
		log.WithEvent(event).Warn().
			Err(err).
			Str("mode", mode).
			Msg("handler returned an error")
	}
}

func indexOf(subs []subscription, id HandlerID) int {
	for i, s := range subs {
		if s.id == id {
			return i
		}
	}
	return -1
}

func removeAt(subs []subscription, idx int) []subscription {
	out := make([]subscription, 0, len(subs)-1)
	out = append(out, subs[:idx]...)
	return append(out, subs[idx+1:]...)
}
