package resources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/withsecure/see-go/pkg/imageprovider"
	"github.com/withsecure/see-go/pkg/log"
	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/types"
)

// DefaultContainerdSocketPath is used when a Resources configuration does
// not name one explicitly.
const DefaultContainerdSocketPath = "/run/containerd/containerd.sock"

// ContainerdNamespace scopes every environment's containers away from
// anything else sharing the host's containerd daemon.
const ContainerdNamespace = "see"

// lxcResources is the container-based driver: no hypervisor connection and
// no storage pool exist in this model, so Hypervisor() and StoragePool()
// both return nil, matching the upstream LXC driver leaving those
// properties unimplemented. The mount-staging behavior is ported from the
// upstream's mountpoint()/domain_xml(); the container engine underneath it
// is containerd rather than libvirt's lxc:// driver type.
type lxcResources struct {
	identifier string
	cfg        types.ResourcesConfig
	logger     zerolog.Logger

	client    *containerd.Client
	container containerd.Container
	task      containerd.Task
	mounts    []mountedFilesystem
}

type mountedFilesystem struct {
	sourcePath string
	targetPath string
}

// NewLXCResources constructs the LXC driver. Allocation is deferred to
// Allocate; construction never dials containerd.
func NewLXCResources(cfg types.ResourcesConfig, identifier string) (Resources, error) {
	return &lxcResources{
		identifier: identifier,
		cfg:        cfg,
		logger:     log.WithEnvironmentID(identifier).With().Str("driver", DriverLXC).Logger(),
	}, nil
}

func (r *lxcResources) Allocate(ctx context.Context) error {
	timer := metrics.NewTimer()

	client, err := containerd.New(DefaultContainerdSocketPath)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverLXC, "error").Inc()
		return fmt.Errorf("%w: failed to connect to containerd: %v", types.ErrResourceUnavailable, err)
	}
	r.client = client
	ctx = namespaces.WithNamespace(ctx, ContainerdNamespace)

	for _, m := range r.cfg.Domain.Filesystem {
		source := filepath.Join(m.SourcePath, r.identifier)
		if err := os.MkdirAll(source, 0755); err != nil {
			metrics.ResourceAllocationsTotal.WithLabelValues(DriverLXC, "error").Inc()
			return fmt.Errorf("failed to provision mountpoint %s: %w", source, err)
		}
		r.mounts = append(r.mounts, mountedFilesystem{sourcePath: source, targetPath: m.TargetPath})
	}

	imageRef, err := r.resolvedImage(ctx)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverLXC, "error").Inc()
		return err
	}

	image, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverLXC, "error").Inc()
		return fmt.Errorf("%w: failed to pull image %s: %v", types.ErrResourceUnavailable, imageRef, err)
	}

	opts := []oci.SpecOpts{oci.WithImageConfig(image)}
	if len(r.mounts) > 0 {
		mounts := make([]specs.Mount, 0, len(r.mounts))
		for _, m := range r.mounts {
			mounts = append(mounts, bindMount(m.sourcePath, m.targetPath))
		}
		opts = append(opts, oci.WithMounts(mounts))
	}

	container, err := r.client.NewContainer(
		ctx,
		r.identifier,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(r.identifier+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverLXC, "error").Inc()
		return fmt.Errorf("%w: failed to create container: %v", types.ErrOperationFailed, err)
	}
	r.container = container

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverLXC, "error").Inc()
		return fmt.Errorf("%w: failed to create task: %v", types.ErrOperationFailed, err)
	}
	r.task = task

	if err := task.Start(ctx); err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverLXC, "error").Inc()
		return fmt.Errorf("%w: failed to start task: %v", types.ErrOperationFailed, err)
	}

	metrics.ResourceAllocationsTotal.WithLabelValues(DriverLXC, "success").Inc()
	timer.ObserveDurationVec(metrics.DomainCreateDuration, DriverLXC)
	return nil
}

func (r *lxcResources) Deallocate(ctx context.Context) error {
	ctx = namespaces.WithNamespace(ctx, ContainerdNamespace)

	if r.task != nil {
		if err := r.stopTask(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("unable to stop container task")
		}
	}
	if r.container != nil {
		if err := r.container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
			r.logger.Warn().Err(err).Msg("unable to delete container")
		}
	}
	for _, m := range r.mounts {
		if err := os.RemoveAll(m.sourcePath); err != nil {
			r.logger.Warn().Err(err).Str("path", m.sourcePath).Msg("unable to remove mountpoint")
		}
	}
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("unable to close containerd client")
		}
	}
	return nil
}

func (r *lxcResources) stopTask(ctx context.Context) error {
	if err := r.task.Kill(ctx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal task: %w", err)
	}
	if err := r.waitTaskExit(ctx, 10*time.Second); err != nil {
		return err
	}
	_, err := r.task.Delete(ctx)
	return err
}

// waitTaskExit blocks until r.task's init process exits, force-killing it
// with SIGKILL if it has not exited within timeout.
func (r *lxcResources) waitTaskExit(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusC, err := r.task.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	select {
	case <-statusC:
		return nil
	case <-waitCtx.Done():
		if err := r.task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
		return nil
	}
}

// recreateTask replaces a stopped task with a fresh one: containerd's Task
// is a one-shot handle around a single init process, so restarting a
// container that has already been powered off requires deleting the dead
// task and creating a new one, the same steps Allocate itself takes rather
// than a libvirt-style "un-suspend" RPC (there is no such RPC for a task
// whose process has already exited).
func (r *lxcResources) recreateTask(ctx context.Context) error {
	ctx = namespaces.WithNamespace(ctx, ContainerdNamespace)

	if r.task != nil {
		if err := r.waitTaskExit(ctx, 10*time.Second); err != nil {
			r.logger.Warn().Err(err).Msg("task did not stop cleanly before restart")
		}
		if _, err := r.task.Delete(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("unable to delete stopped task before restart")
		}
	}

	task, err := r.container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("%w: failed to create task: %v", types.ErrOperationFailed, err)
	}
	r.task = task

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("%w: failed to start task: %v", types.ErrOperationFailed, err)
	}
	return nil
}

func (r *lxcResources) resolvedImage(ctx context.Context) (string, error) {
	descriptor, err := imageprovider.DescriptorFromConfig(r.cfg.Disk.Image)
	if err != nil {
		return "", err
	}
	return imageprovider.Resolve(ctx, descriptor)
}

// Hypervisor always returns nil: the LXC driver has no hypervisor
// connection concept, matching the upstream's NotImplementedError left
// unoverridden.
func (r *lxcResources) Hypervisor() any { return nil }

func (r *lxcResources) Domain() Domain {
	if r.container == nil || r.task == nil {
		return nil
	}
	return &lxcDomain{resources: r}
}

func (r *lxcResources) Network() any { return nil }

// StoragePool always returns nil: the LXC driver stages bind mounts
// directly on the host filesystem instead of a libvirt storage pool.
func (r *lxcResources) StoragePool() any { return nil }

// Exec runs command inside the container's namespaces, implementing
// health.ContainerExecer so pkg/health.ExecChecker can probe workload
// liveness without pkg/health importing this package.
func (r *lxcResources) Exec(ctx context.Context, containerID string, command []string) (stdout, stderr []byte, err error) {
	if r.task == nil {
		return nil, nil, fmt.Errorf("%w: container has no running task", types.ErrResourceUnavailable)
	}
	return execInTask(ctx, r.task, command)
}

// lxcDomain adapts the running container/task pair to the Domain
// interface.
type lxcDomain struct {
	resources *lxcResources
}

func (d *lxcDomain) ID() string { return d.resources.identifier }

func (d *lxcDomain) State(ctx context.Context) (types.DomainState, error) {
	status, err := d.resources.task.Status(ctx)
	if err != nil {
		return types.DomainNoState, fmt.Errorf("failed to read task status: %w", err)
	}
	switch status.Status {
	case containerd.Running, containerd.Paused:
		return types.DomainRunning, nil
	case containerd.Stopped:
		return types.DomainShutoff, nil
	default:
		return types.DomainNoState, nil
	}
}

// MACAddress is unsupported: containers attach to a CNI-managed interface
// with no stable libvirt-style MAC this driver manages directly.
func (d *lxcDomain) MACAddress(ctx context.Context) (string, error) {
	return "", fmt.Errorf("%w: LXC driver does not expose a MAC address", types.ErrResourceUnavailable)
}

// IPAddress reads the container task's network namespace directly via the
// host's ip command, ported from the upstream ContainerdRuntime's
// nsenter-based GetContainerIP.
func (d *lxcDomain) IPAddress(ctx context.Context, mac string) (string, error) {
	pid := d.resources.task.Pid()
	if pid == 0 {
		return "", fmt.Errorf("%w: container task has no pid", types.ErrResourceUnavailable)
	}
	return containerIPFromNamespace(ctx, pid)
}

// PowerOn starts a fresh task: a task whose init process has already
// exited (this driver's PowerOff/Shutdown/ForcedPowerOff all kill it)
// cannot be un-paused, only replaced.
func (d *lxcDomain) PowerOn(ctx context.Context) error {
	return d.resources.recreateTask(ctx)
}

func (d *lxcDomain) Resume(ctx context.Context) error {
	return d.resources.task.Resume(ctx)
}

func (d *lxcDomain) Pause(ctx context.Context) error {
	return d.resources.task.Pause(ctx)
}

func (d *lxcDomain) PowerOff(ctx context.Context) error {
	return d.resources.task.Kill(ctx, syscall.SIGTERM)
}

func (d *lxcDomain) ForcedPowerOff(ctx context.Context) error {
	return d.resources.task.Kill(ctx, syscall.SIGKILL)
}

func (d *lxcDomain) Shutdown(ctx context.Context) error {
	return d.resources.task.Kill(ctx, syscall.SIGTERM)
}

func (d *lxcDomain) Restart(ctx context.Context) error {
	if err := d.resources.task.Kill(ctx, syscall.SIGTERM); err != nil {
		return err
	}
	return d.resources.recreateTask(ctx)
}
