package resources

import (
	"context"
	"net/url"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog"

	"github.com/withsecure/see-go/pkg/health"
)

// libvirtConnectionAlive reports whether a libvirt-backed driver's
// connection still answers, the getter guard spec.md §4.3 requires before
// Hypervisor/Domain/Network/StoragePool hand back a handle. A remote
// connection (qemu+tcp://, qemu+tls://) is probed at the transport level
// with a health.TCPChecker against the URI's host:port, since a socket
// that refuses new connections is the clearest sign the other end is
// gone; a local URI (qemu:///system, vbox:///session) has no TCP endpoint
// to dial, so it falls back to libvirt's own ConnectIsAlive keepalive RPC.
func libvirtConnectionAlive(ctx context.Context, conn *libvirt.Libvirt, uri string, logger zerolog.Logger) bool {
	if conn == nil {
		return false
	}

	if addr, ok := tcpEndpoint(uri); ok {
		result := health.NewTCPChecker(addr).Check(ctx)
		if !result.Healthy {
			logger.Warn().Str("address", addr).Str("detail", result.Message).Msg("hypervisor connection liveness check failed")
		}
		return result.Healthy
	}

	alive, err := conn.ConnectIsAlive()
	if err != nil {
		logger.Warn().Err(err).Msg("hypervisor connection liveness check failed")
		return false
	}
	return alive != 0
}

// tcpEndpoint extracts a host:port from a libvirt URI that carries one
// (qemu+tcp://host:port/system, qemu+tls://host/system defaulting to
// libvirtd's TLS port). Local transports (unix socket, embedded driver)
// report ok=false since there is no TCP endpoint to probe.
func tcpEndpoint(uri string) (string, bool) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Host == "" {
		return "", false
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case strings.HasSuffix(scheme, "+tcp"):
		host := parsed.Host
		if parsed.Port() == "" {
			host += ":16509"
		}
		return host, true
	case strings.HasSuffix(scheme, "+tls"):
		host := parsed.Host
		if parsed.Port() == "" {
			host += ":16514"
		}
		return host, true
	default:
		return "", false
	}
}
