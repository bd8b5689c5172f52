package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPCheckerReportsHealthyWhenPortAccepts(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	result := NewTCPChecker(listener.Addr().String()).Check(context.Background())

	assert.True(t, result.Healthy, result.Message)
	assert.Contains(t, result.Message, "succeeded")
}

func TestTCPCheckerReportsUnhealthyWhenNothingListens(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	result := NewTCPChecker(addr).WithTimeout(200 * time.Millisecond).Check(context.Background())

	assert.False(t, result.Healthy)
}

func TestTCPCheckerType(t *testing.T) {
	assert.Equal(t, CheckTypeTCP, NewTCPChecker("127.0.0.1:0").Type())
}
