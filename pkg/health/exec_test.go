package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fakeExecer(stdout, stderr []byte, err error) ContainerExecer {
	return func(ctx context.Context, containerID string, command []string) ([]byte, []byte, error) {
		return stdout, stderr, err
	}
}

func TestExecCheckerReportsHealthyOnZeroExit(t *testing.T) {
	checker := NewExecChecker([]string{"true"}).WithContainer("env-1")
	checker.Execer = fakeExecer([]byte("ok"), nil, nil)

	result := checker.Check(context.Background())

	assert.True(t, result.Healthy, result.Message)
	assert.Contains(t, result.Message, "ok")
}

func TestExecCheckerReportsUnhealthyOnNonZeroExit(t *testing.T) {
	checker := NewExecChecker([]string{"false"}).WithContainer("env-1")
	checker.Execer = fakeExecer(nil, []byte("boom"), errors.New("exit status 1"))

	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "boom")
}

func TestExecCheckerFailsWithoutExecerWhenContainerIDSet(t *testing.T) {
	checker := NewExecChecker([]string{"true"}).WithContainer("env-1")

	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "no container execer")
}

func TestExecCheckerRejectsEmptyCommand(t *testing.T) {
	checker := &ExecChecker{}

	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "no command")
}

func TestExecCheckerType(t *testing.T) {
	assert.Equal(t, CheckTypeExec, NewExecChecker([]string{"true"}).Type())
}
