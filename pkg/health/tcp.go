package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker reports a resource live if address accepts a TCP connection.
// pkg/resources uses this against a libvirt connection's host:port rather
// than trusting a cached connection handle that the remote libvirtd may
// have already dropped.
type TCPChecker struct {
	// Address is host:port to dial, e.g. "10.0.0.5:16509".
	Address string

	// Timeout bounds the dial itself (default: 5 seconds).
	Timeout time.Duration
}

// NewTCPChecker returns a TCPChecker with the default dial timeout.
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Check dials Address and reports whether the connection succeeded.
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("dial %s: %v", t.Address, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer conn.Close()

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("tcp connect to %s succeeded", t.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type reports CheckTypeTCP.
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout overrides the dial timeout and returns the receiver.
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
