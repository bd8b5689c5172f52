package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ContainerExecer runs command inside a running container identified by
// containerID and returns its captured stdout/stderr. A resource driver
// that manages containers (pkg/resources's LXC driver) supplies one so
// ExecChecker can probe workload liveness without pkg/health importing
// pkg/resources.
type ContainerExecer func(ctx context.Context, containerID string, command []string) (stdout, stderr []byte, err error)

// ExecChecker performs exec-based health checks by running a command
type ExecChecker struct {
	// Command is the command to execute (e.g., ["pg_isready", "-U", "postgres"])
	Command []string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration

	// ContainerID is the ID of the container to exec into.
	// If empty, runs on host (useful for testing).
	ContainerID string

	// Execer runs Command inside ContainerID. Required whenever ContainerID
	// is set; ignored otherwise.
	Execer ContainerExecer
}

// NewExecChecker creates a new exec health checker
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check performs the exec health check
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return Result{
			Healthy:   false,
			Message:   "no command specified",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	// Create context with timeout
	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var stdoutBytes, stderrBytes []byte
	var err error

	if e.ContainerID != "" {
		if e.Execer == nil {
			return Result{
				Healthy:   false,
				Message:   "no container execer configured",
				CheckedAt: start,
				Duration:  time.Since(start),
			}
		}
		stdoutBytes, stderrBytes, err = e.Execer(execCtx, e.ContainerID, e.Command)
	} else {
		// Execute on host (for testing)
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(execCtx, e.Command[0], e.Command[1:]...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err = cmd.Run()
		stdoutBytes, stderrBytes = stdout.Bytes(), stderr.Bytes()
	}

	// Build result message
	message := fmt.Sprintf("Command: %v", e.Command)
	if err != nil {
		message = fmt.Sprintf("%s, Error: %v", message, err)
		if len(stderrBytes) > 0 {
			message = fmt.Sprintf("%s, Stderr: %s", message, string(stderrBytes))
		}

		return Result{
			Healthy:   false,
			Message:   message,
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	// Command succeeded (exit code 0)
	if len(stdoutBytes) > 0 {
		// Include output in message (truncated if too long)
		output := string(stdoutBytes)
		if len(output) > 100 {
			output = output[:100] + "..."
		}
		message = fmt.Sprintf("%s, Output: %s", message, output)
	}

	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

// WithContainer sets the container ID for exec
func (e *ExecChecker) WithContainer(containerID string) *ExecChecker {
	e.ContainerID = containerID
	return e
}
