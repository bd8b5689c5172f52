package resources

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// bindMount builds a read-write bind mount from source on the host to
// target inside the container, ported from the upstream's
// CreateContainerWithMounts secrets/volume mount handling.
func bindMount(source, target string) specs.Mount {
	return specs.Mount{
		Source:      source,
		Destination: target,
		Type:        "bind",
		Options:     []string{"rbind", "rw"},
	}
}

// execInTask runs command as an additional process inside task's
// namespaces and captures its stdout and stderr separately, the containerd analogue of
// health.ExecChecker's host exec.Command path. It is wired into
// health.ContainerExecer by the LXC driver's Exec method.
func execInTask(ctx context.Context, task containerd.Task, command []string) (stdout, stderr []byte, err error) {
	if len(command) == 0 {
		return nil, nil, fmt.Errorf("exec requires a non-empty command")
	}

	execID := "exec-" + uuid.NewString()
	spec := &specs.Process{Args: command, Cwd: "/"}

	var outBuf, errBuf bytes.Buffer
	process, err := task.Exec(ctx, execID, spec, cio.NewCreator(cio.WithStreams(nil, &outBuf, &errBuf)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create exec process: %w", err)
	}
	defer process.Delete(ctx)

	statusC, err := process.Wait(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wait for exec process: %w", err)
	}

	if err := process.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start exec process: %w", err)
	}

	status := <-statusC
	if code, _, _ := status.Result(); code != 0 {
		return outBuf.Bytes(), errBuf.Bytes(), fmt.Errorf("command exited with status %d", code)
	}

	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// containerIPFromNamespace reads the first IPv4 address of eth0 inside
// pid's network namespace via nsenter, ported verbatim from the
// upstream's ContainerdRuntime.GetContainerIP.
func containerIPFromNamespace(ctx context.Context, pid uint32) (string, error) {
	cmd := exec.CommandContext(ctx, "nsenter", "-t", fmt.Sprintf("%d", pid), "-n", "ip", "-4", "addr", "show", "eth0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to read container network namespace: %w (output: %s)", err, string(output))
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, _, err := net.ParseCIDR(fields[1])
		if err != nil {
			return "", fmt.Errorf("failed to parse container address %s: %w", fields[1], err)
		}
		return ip.String(), nil
	}

	return "", fmt.Errorf("no IPv4 address found on eth0")
}
