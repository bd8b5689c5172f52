package hooks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/withsecure/see-go/pkg/events"
	"github.com/withsecure/see-go/pkg/types"
)

type recordingHook struct {
	config      map[string]any
	cleanupErr  error
	cleanupHits *int
}

func (h *recordingHook) Cleanup() error {
	if h.cleanupHits != nil {
		*h.cleanupHits++
	}
	return h.cleanupErr
}

func TestMain(m *testing.M) {
	Register("recorder", func(p Parameters) (Hook, error) {
		return &recordingHook{config: p.Configuration}, nil
	})
	Register("failing-construct", func(p Parameters) (Hook, error) {
		return nil, errors.New("boom")
	})
	m.Run()
}

func TestLoadMergesEntryConfigOverSharedConfig(t *testing.T) {
	var captured map[string]any
	Register("capture", func(p Parameters) (Hook, error) {
		captured = p.Configuration
		return &recordingHook{}, nil
	})

	mgr := NewManager("env-1", map[string]any{
		"configuration": map[string]any{"level": "shared", "shared_only": "s"},
	})
	entries := []types.HookEntry{
		{Name: "capture", Configuration: map[string]any{"level": "entry", "entry_only": "e"}},
	}

	mgr.Load(events.NewBus(), entries)

	assert.Equal(t, "entry", captured["level"], "entry should win over shared on collision")
	assert.Equal(t, "s", captured["shared_only"], "shared value should still be present")
	assert.Equal(t, "e", captured["entry_only"], "entry value should still be present")
}

func TestLoadSkipsEntryWithNoName(t *testing.T) {
	mgr := NewManager("env-1", nil)
	mgr.Load(events.NewBus(), []types.HookEntry{{Name: ""}})

	assert.Equal(t, 0, mgr.Len())
}

func TestLoadSkipsUnregisteredName(t *testing.T) {
	mgr := NewManager("env-1", nil)
	mgr.Load(events.NewBus(), []types.HookEntry{{Name: "does-not-exist"}})

	assert.Equal(t, 0, mgr.Len())
}

func TestLoadSkipsConstructorError(t *testing.T) {
	mgr := NewManager("env-1", nil)
	mgr.Load(events.NewBus(), []types.HookEntry{{Name: "failing-construct"}})

	assert.Equal(t, 0, mgr.Len())
}

func TestLoadAppendsSuccessfulHooksInOrder(t *testing.T) {
	mgr := NewManager("env-1", nil)
	mgr.Load(events.NewBus(), []types.HookEntry{
		{Name: "recorder"},
		{Name: "recorder"},
	})

	assert.Equal(t, 2, mgr.Len())
}

func TestCleanupContinuesPastFailureAndClearsHooks(t *testing.T) {
	hits := 0
	Register("cleanup-ok", func(p Parameters) (Hook, error) {
		return &recordingHook{cleanupHits: &hits}, nil
	})
	Register("cleanup-fails", func(p Parameters) (Hook, error) {
		return &recordingHook{cleanupErr: errors.New("cleanup boom"), cleanupHits: &hits}, nil
	})

	mgr := NewManager("env-1", nil)
	mgr.Load(events.NewBus(), []types.HookEntry{
		{Name: "cleanup-fails"},
		{Name: "cleanup-ok"},
	})
	assert.Equal(t, 2, mgr.Len(), "want 2 before cleanup")

	mgr.Cleanup()

	assert.Equal(t, 2, hits, "both hooks should be cleaned despite one failing")
	assert.Equal(t, 0, mgr.Len(), "want 0 after Cleanup")
}
