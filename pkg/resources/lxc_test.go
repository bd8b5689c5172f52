package resources

import (
	"context"
	"syscall"
	"testing"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTask embeds the (nil) containerd.Task interface so it satisfies the
// full interface without restating every method; only the ones exercised
// by lxcResources/lxcDomain are overridden.
type fakeTask struct {
	containerd.Task

	pid     uint32
	waitCh  chan containerd.ExitStatus
	killed  []syscall.Signal
	deleted bool
	started bool
}

func newFakeTask(pid uint32) *fakeTask {
	ch := make(chan containerd.ExitStatus, 1)
	ch <- containerd.ExitStatus{}
	return &fakeTask{pid: pid, waitCh: ch}
}

func (f *fakeTask) Kill(ctx context.Context, sig syscall.Signal, opts ...containerd.KillOpts) error {
	f.killed = append(f.killed, sig)
	return nil
}

func (f *fakeTask) Wait(ctx context.Context) (<-chan containerd.ExitStatus, error) {
	return f.waitCh, nil
}

func (f *fakeTask) Delete(ctx context.Context, opts ...containerd.ProcessDeleteOpts) (*containerd.ExitStatus, error) {
	f.deleted = true
	return &containerd.ExitStatus{}, nil
}

func (f *fakeTask) Start(ctx context.Context) error {
	f.started = true
	return nil
}

func (f *fakeTask) Pid() uint32 { return f.pid }

func (f *fakeTask) Status(ctx context.Context) (containerd.Status, error) {
	return containerd.Status{Status: containerd.Stopped}, nil
}

// fakeContainer embeds the (nil) containerd.Container interface the same
// way fakeTask does, only overriding NewTask.
type fakeContainer struct {
	containerd.Container

	newTask *fakeTask
}

func (f *fakeContainer) NewTask(ctx context.Context, ioCreate cio.Creator, opts ...containerd.NewTaskOpts) (containerd.Task, error) {
	return f.newTask, nil
}

func TestLXCDomainPowerOnRecreatesTaskAfterPowerOff(t *testing.T) {
	oldTask := newFakeTask(111)
	newTask := newFakeTask(222)
	container := &fakeContainer{newTask: newTask}

	r := &lxcResources{
		identifier: "env-1",
		logger:     zerolog.Nop(),
		container:  container,
		task:       oldTask,
	}
	dom := &lxcDomain{resources: r}

	// simulate the container having already been powered off once.
	require.NoError(t, dom.PowerOff(context.Background()))
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, oldTask.killed)

	require.NoError(t, dom.PowerOn(context.Background()))

	assert.True(t, oldTask.deleted, "expected the stopped task to be deleted before poweron")
	assert.True(t, newTask.started, "expected poweron to start a freshly created task")
	assert.Same(t, newTask, r.task, "expected poweron to replace the resources' task with the new one")
}

func TestLXCDomainRestartKillsThenRecreatesTask(t *testing.T) {
	oldTask := newFakeTask(111)
	newTask := newFakeTask(222)
	container := &fakeContainer{newTask: newTask}

	r := &lxcResources{
		identifier: "env-1",
		logger:     zerolog.Nop(),
		container:  container,
		task:       oldTask,
	}
	dom := &lxcDomain{resources: r}

	require.NoError(t, dom.Restart(context.Background()))

	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, oldTask.killed)
	assert.True(t, oldTask.deleted)
	assert.True(t, newTask.started)
	assert.Same(t, newTask, r.task)
}
