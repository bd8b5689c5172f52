package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withsecure/see-go/pkg/types"
)

func TestTriggerInvokesSyncHandlerInline(t *testing.T) {
	b := NewBus()
	var got Event
	b.Subscribe("pre_poweron", func(ev Event) error {
		got = ev
		return nil
	})

	b.Trigger("pre_poweron", b, map[string]any{"timeout": 30})

	assert.Equal(t, "pre_poweron", got.Name)
	assert.Equal(t, 30, got.Data["timeout"])
}

func TestTriggerRunsAsyncHandlerOffCallingGoroutine(t *testing.T) {
	b := NewBus()
	release := make(chan struct{})
	done := make(chan struct{})
	var callerGoroutine, handlerGoroutine bool
	b.SubscribeAsync("post_poweron", func(ev Event) error {
		<-release
		handlerGoroutine = true
		close(done)
		return nil
	})

	// Trigger has to return while the handler is still blocked; an inline
	// call would not get past it.
	returned := make(chan struct{})
	go func() {
		b.Trigger("post_poweron", b, nil)
		close(returned)
	}()
	select {
	case <-returned:
		callerGoroutine = true
	case <-time.After(time.Second):
	}
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler never ran")
	}
	assert.True(t, callerGoroutine, "Trigger waited for the async handler")
	assert.True(t, handlerGoroutine)
}

func TestHandlerFailureDoesNotStopRemainingHandlers(t *testing.T) {
	b := NewBus()
	var second int32
	b.Subscribe("pre_shutdown", func(ev Event) error {
		return errors.New("boom")
	})
	b.Subscribe("pre_shutdown", func(ev Event) error {
		atomic.AddInt32(&second, 1)
		return nil
	})

	b.Trigger("pre_shutdown", b, nil)

	assert.EqualValues(t, 1, atomic.LoadInt32(&second))
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	b := NewBus()
	var ran bool
	b.Subscribe("pre_restart", func(ev Event) error {
		panic("handler exploded")
	})
	b.Subscribe("pre_restart", func(ev Event) error {
		ran = true
		return nil
	})

	b.Trigger("pre_restart", b, nil)

	assert.True(t, ran, "expected second handler to run after first panicked")
}

func TestUnsubscribeRemovesSyncFirstThenAsync(t *testing.T) {
	b := NewBus()
	var syncCalled, asyncCalled int32

	syncID := b.Subscribe("post_pause", func(ev Event) error {
		atomic.AddInt32(&syncCalled, 1)
		return nil
	})
	asyncID := b.SubscribeAsync("post_pause", func(ev Event) error {
		atomic.AddInt32(&asyncCalled, 1)
		return nil
	})

	require.NoError(t, b.Unsubscribe("post_pause", syncID))

	b.Trigger("post_pause", b, nil)
	require.NoError(t, b.Drain(context.Background()))

	assert.EqualValues(t, 0, atomic.LoadInt32(&syncCalled), "sync handler should have been removed")
	assert.EqualValues(t, 1, atomic.LoadInt32(&asyncCalled), "async handler should still fire")

	require.NoError(t, b.Unsubscribe("post_pause", asyncID))
	err := b.Unsubscribe("post_pause", asyncID)
	assert.ErrorIs(t, err, types.ErrNotSubscribed)
}

func TestDrainWaitsForInFlightAsyncHandlers(t *testing.T) {
	b := NewBus()
	release := make(chan struct{})
	b.SubscribeAsync("post_shutdown", func(ev Event) error {
		<-release
		return nil
	})

	b.Trigger("post_shutdown", b, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, b.Drain(ctx), "expected Drain to time out while handler is blocked")

	close(release)
	assert.NoError(t, b.Drain(context.Background()), "expected Drain to succeed once handler unblocked")
}

func TestTriggerSnapshotAllowsReentrantTriggerFromHandler(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	var cascaded bool

	b.Subscribe("pre_resume", func(ev Event) error {
		b.Trigger("pre_resume_child", b, nil)
		return nil
	})
	b.Subscribe("pre_resume_child", func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		cascaded = true
		return nil
	})

	done := make(chan struct{})
	go func() {
		b.Trigger("pre_resume", b, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested Trigger deadlocked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, cascaded, "expected nested event to have been handled")
}
