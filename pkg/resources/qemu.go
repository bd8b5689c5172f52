package resources

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog"

	"github.com/withsecure/see-go/pkg/imageprovider"
	"github.com/withsecure/see-go/pkg/log"
	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/types"
)

// DefaultQEMUHypervisorURI is used when a Resources configuration does not
// name one explicitly.
const DefaultQEMUHypervisorURI = "qemu:///system"

// qemuResources is the QEMU/KVM driver: a thin wrapper around a libvirt
// connection that allocates a storage pool, network and domain, in that
// order, and tears them down in reverse, matching the upstream
// QEMUResources.
type qemuResources struct {
	identifier string
	cfg        types.ResourcesConfig
	logger     zerolog.Logger

	conn          *libvirt.Libvirt
	hypervisorURI string
	pool          *libvirt.StoragePool
	network       *libvirt.Network
	domain        *qemuDomain
	diskPath      string
	networkAddr   string
}

// NewQEMUResources constructs the QEMU driver. Allocation is deferred to
// Allocate; construction never touches libvirt.
func NewQEMUResources(cfg types.ResourcesConfig, identifier string) (Resources, error) {
	return &qemuResources{
		identifier: identifier,
		cfg:        cfg,
		logger:     log.WithEnvironmentID(identifier).With().Str("driver", DriverQEMU).Logger(),
	}, nil
}

func (r *qemuResources) Allocate(ctx context.Context) error {
	timer := metrics.NewTimer()
	uri := r.cfg.HypervisorURI
	if uri == "" {
		uri = DefaultQEMUHypervisorURI
	}
	conn, err := libvirt.ConnectToURI(libvirt.ConnectURI(uri))
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverQEMU, "error").Inc()
		return fmt.Errorf("%w: failed to connect to %s: %v", types.ErrResourceUnavailable, uri, err)
	}
	r.conn = conn
	r.hypervisorURI = uri

	pool, err := r.retrievePool()
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverQEMU, "error").Inc()
		return err
	}
	r.pool = pool

	var networkName string
	if r.cfg.Network != nil {
		addr, network, err := r.createNetwork(ctx)
		if err != nil {
			metrics.ResourceAllocationsTotal.WithLabelValues(DriverQEMU, "error").Inc()
			return err
		}
		r.network = network
		r.networkAddr = addr.String()
		networkName = network.Name
	}

	diskPath, err := r.retrieveDiskPath(ctx)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverQEMU, "error").Inc()
		return err
	}
	r.diskPath = diskPath

	if r.pool != nil {
		_ = r.conn.StoragePoolRefresh(*r.pool, 0)
	}

	domain, err := r.createDomain(diskPath, networkName)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverQEMU, "error").Inc()
		return err
	}
	r.domain = domain

	if err := r.conn.DomainCreate(domain.handle); err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverQEMU, "error").Inc()
		return fmt.Errorf("%w: failed to start domain: %v", types.ErrOperationFailed, err)
	}

	if r.network == nil {
		if name, ok, err := r.lookupDomainNetwork(); err == nil && ok {
			if net, lerr := r.conn.NetworkLookupByName(name); lerr == nil {
				r.network = &net
			}
		}
	}

	metrics.ResourceAllocationsTotal.WithLabelValues(DriverQEMU, "success").Inc()
	timer.ObserveDurationVec(metrics.DomainCreateDuration, DriverQEMU)
	return nil
}

func (r *qemuResources) Deallocate(ctx context.Context) error {
	if r.domain != nil {
		r.deleteDomain()
	}
	if r.network != nil {
		r.deleteNetwork()
	}
	if r.pool != nil && r.cfg.Disk.Clone != nil {
		r.deletePool()
	}
	if r.conn != nil {
		if err := r.conn.Disconnect(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close hypervisor connection")
		}
	}
	return nil
}

// Hypervisor returns the libvirt connection handle, or nil if it is not
// connected or has stopped responding (spec.md §4.3: getters must guard
// liveness and fail resource-unavailable when violated; since this
// accessor has no error return, "fail" here means returning nil, which
// every caller already treats as "this driver has no such handle").
func (r *qemuResources) Hypervisor() any {
	if r.conn == nil || !r.connectionAlive(context.Background()) {
		return nil
	}
	return r.conn
}

// Domain returns the domain handle, guarded the same way as Hypervisor:
// a connection that has stopped responding is indistinguishable from one
// that was never established.
func (r *qemuResources) Domain() Domain {
	if r.domain == nil || !r.connectionAlive(context.Background()) {
		return nil
	}
	return r.domain
}

func (r *qemuResources) Network() any {
	if r.network == nil || !r.connectionAlive(context.Background()) {
		return nil
	}
	return r.network
}

func (r *qemuResources) StoragePool() any {
	if r.pool == nil || !r.connectionAlive(context.Background()) {
		return nil
	}
	return r.pool
}

// connectionAlive is the spec.md §4.3 liveness guard: a health.TCPChecker
// probe for a remote libvirtd, libvirt's own ConnectIsAlive RPC for a
// local one. A connection that fails this check is treated as gone:
// callers fall back to the "no such handle" nil convention rather than
// operating against a stale connection.
func (r *qemuResources) connectionAlive(ctx context.Context) bool {
	return libvirtConnectionAlive(ctx, r.conn, r.hypervisorURI, r.logger)
}

func (r *qemuResources) retrievePool() (*libvirt.StoragePool, error) {
	clone := r.cfg.Disk.Clone
	if clone == nil {
		return nil, nil
	}

	path := filepath.Join(clone.StoragePoolPath, r.identifier)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage pool directory: %w", err)
	}

	doc := ClonePoolXML(r.identifier, path)
	pool, err := r.conn.StoragePoolCreateXML(doc, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create storage pool: %v", types.ErrResourceUnavailable, err)
	}
	return &pool, nil
}

func (r *qemuResources) resolvedImage(ctx context.Context) (string, error) {
	descriptor, err := imageprovider.DescriptorFromConfig(r.cfg.Disk.Image)
	if err != nil {
		return "", err
	}
	return imageprovider.Resolve(ctx, descriptor)
}

func (r *qemuResources) retrieveDiskPath(ctx context.Context) (string, error) {
	image, err := r.resolvedImage(ctx)
	if err != nil {
		return "", err
	}
	if r.cfg.Disk.Clone == nil {
		return image, nil
	}
	return r.cloneDisk(image)
}

func (r *qemuResources) cloneDisk(image string) (string, error) {
	baseVol, err := r.conn.StorageVolLookupByPath(image)
	if err != nil {
		return "", fmt.Errorf("%w: base image %s is not in a libvirt storage pool: %v", types.ErrResourceUnavailable, image, err)
	}

	baseVolXML, err := r.conn.StorageVolGetXMLDesc(baseVol, 0)
	if err != nil {
		return "", fmt.Errorf("failed to read base volume XML: %w", err)
	}

	poolXML, err := r.conn.StoragePoolGetXMLDesc(*r.pool, 0)
	if err != nil {
		return "", fmt.Errorf("failed to read storage pool XML: %w", err)
	}

	cow := r.cfg.Disk.Clone.CopyOnWrite
	volXML, err := CloneVolumeXML(r.identifier, mustPoolPath(poolXML), baseVolXML, cow)
	if err != nil {
		return "", err
	}

	var vol libvirt.StorageVol
	if cow {
		vol, err = r.conn.StorageVolCreateXML(*r.pool, volXML, 0)
	} else {
		vol, err = r.conn.StorageVolCreateXMLFrom(*r.pool, volXML, baseVol, 0)
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to clone disk: %v", types.ErrOperationFailed, err)
	}

	return r.conn.StorageVolGetPath(vol)
}

func mustPoolPath(poolXMLText string) string {
	path, err := PoolPath(poolXMLText)
	if err != nil {
		return ""
	}
	return path
}

// libvirtNetworkLister implements ActiveNetworkLister against a live
// libvirt connection, used only by createNetwork: every other caller of
// AddressLookup/GenerateNetwork in this package's tests supplies a fake.
type libvirtNetworkLister struct {
	conn *libvirt.Libvirt
}

func (l libvirtNetworkLister) ActiveNetworkAddresses(ctx context.Context) ([]*net.IPNet, error) {
	networks, _, err := l.conn.ConnectListAllNetworks(-1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	var active []*net.IPNet
	for _, n := range networks {
		desc, err := l.conn.NetworkGetXMLDesc(n, 0)
		if err != nil {
			continue
		}
		if ipnet, ok, err := ParseNetworkIPNet(desc); err == nil && ok {
			active = append(active, ipnet)
		}
	}
	return active, nil
}

func (r *qemuResources) createNetwork(ctx context.Context) (*net.IPNet, *libvirt.Network, error) {
	var defined *libvirt.Network
	addr, err := GenerateNetwork(ctx, libvirtNetworkLister{conn: r.conn}, *r.cfg.Network, BridgeName(r.identifier), func(doc string) error {
		n, err := r.conn.NetworkDefineXML(doc)
		if err != nil {
			return err
		}
		if err := r.conn.NetworkCreate(n); err != nil {
			_ = r.conn.NetworkUndefine(n)
			return err
		}
		defined = &n
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return addr, defined, nil
}

func (r *qemuResources) createDomain(diskPath, networkName string) (*qemuDomain, error) {
	path := r.cfg.Domain.ConfigurationPath
	baseXML, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain configuration %s: %w", path, err)
	}

	doc, err := BuildDomainXML(r.identifier, string(baseXML), diskPath, networkName)
	if err != nil {
		return nil, err
	}

	dom, err := r.conn.DomainDefineXML(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to define domain: %v", types.ErrOperationFailed, err)
	}

	return &qemuDomain{conn: r.conn, handle: dom}, nil
}

func (r *qemuResources) lookupDomainNetwork() (string, bool, error) {
	if r.domain == nil {
		return "", false, nil
	}
	domXML, err := r.conn.DomainGetXMLDesc(r.domain.handle, 0)
	if err != nil {
		return "", false, err
	}
	return InterfaceNetworkName(domXML)
}

func (r *qemuResources) deleteDomain() {
	active, err := r.conn.DomainIsActive(r.domain.handle)
	if err == nil && active == 1 {
		if err := r.conn.DomainDestroy(r.domain.handle); err != nil {
			r.logger.Warn().Err(err).Msg("unable to destroy domain")
		}
	}
	if err := r.conn.DomainUndefineFlags(r.domain.handle, libvirt.DomainUndefineSnapshotsMetadata); err != nil {
		r.logger.Warn().Err(err).Msg("unable to undefine domain")
	}
}

func (r *qemuResources) deleteNetwork() {
	if err := r.conn.NetworkDestroy(*r.network); err != nil {
		r.logger.Warn().Err(err).Msg("unable to destroy network")
	}
}

func (r *qemuResources) deletePool() {
	poolXMLText, err := r.conn.StoragePoolGetXMLDesc(*r.pool, 0)
	var path string
	if err == nil {
		path, _ = PoolPath(poolXMLText)
	}

	if volumes, _, err := r.conn.StoragePoolListAllVolumes(*r.pool, -1, 0); err == nil {
		for _, vol := range volumes {
			if err := r.conn.StorageVolDelete(vol, 0); err != nil {
				r.logger.Warn().Err(err).Str("volume", vol.Name).Msg("unable to delete storage volume")
			}
		}
	}

	if err := r.conn.StoragePoolDestroy(*r.pool); err != nil {
		r.logger.Warn().Err(err).Msg("unable to destroy storage pool")
	}
	if path != "" {
		if err := os.RemoveAll(path); err != nil {
			r.logger.Warn().Err(err).Msg("unable to remove storage pool directory")
		}
	}
}

// qemuDomain adapts a libvirt domain handle to the Domain interface. Its
// State is libvirt's DomainGetState reply; the VirtualBox driver reuses it.
type qemuDomain struct {
	conn   *libvirt.Libvirt
	handle libvirt.Domain
}

func (d *qemuDomain) ID() string { return d.handle.Name }

func (d *qemuDomain) State(ctx context.Context) (types.DomainState, error) {
	state, _, err := d.conn.DomainGetState(d.handle, 0)
	if err != nil {
		return types.DomainNoState, fmt.Errorf("failed to read domain state: %w", err)
	}
	return types.DomainState(state), nil
}

func (d *qemuDomain) MACAddress(ctx context.Context) (string, error) {
	domXML, err := d.conn.DomainGetXMLDesc(d.handle, 0)
	if err != nil {
		return "", fmt.Errorf("failed to read domain XML: %w", err)
	}
	mac, ok, err := InterfaceMAC(domXML)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: domain has no network interface", types.ErrResourceUnavailable)
	}
	return mac, nil
}

// IPAddress reports the address leased to mac, reading libvirt's DHCP
// lease table for the domain's network (spec.md's SUPPLEMENTAL FEATURES
// #2). It makes no guest-agent or interface-address query, and it returns
// the first lease whose MAC matches without checking its address family.
func (d *qemuDomain) IPAddress(ctx context.Context, mac string) (string, error) {
	domXML, err := d.conn.DomainGetXMLDesc(d.handle, 0)
	if err != nil {
		return "", fmt.Errorf("failed to read domain XML: %w", err)
	}
	name, ok, err := InterfaceNetworkName(domXML)
	if err != nil || !ok {
		return "", fmt.Errorf("%w: domain has no libvirt network attachment to read a DHCP lease from", types.ErrResourceUnavailable)
	}

	network, err := d.conn.NetworkLookupByName(name)
	if err != nil {
		return "", fmt.Errorf("failed to look up network %s: %w", name, err)
	}

	leases, _, err := d.conn.NetworkGetDhcpLeases(network, nil, -1, 0)
	if err != nil {
		return "", fmt.Errorf("failed to read DHCP leases: %w", err)
	}
	for _, lease := range leases {
		if lease.Mac == mac {
			return lease.Ipaddr, nil
		}
	}
	return "", fmt.Errorf("%w: no DHCP lease found for %s", types.ErrResourceUnavailable, mac)
}

func (d *qemuDomain) PowerOn(ctx context.Context) error {
	return d.conn.DomainCreate(d.handle)
}

func (d *qemuDomain) Resume(ctx context.Context) error {
	return d.conn.DomainResume(d.handle)
}

func (d *qemuDomain) Pause(ctx context.Context) error {
	return d.conn.DomainSuspend(d.handle)
}

func (d *qemuDomain) PowerOff(ctx context.Context) error {
	return d.conn.DomainShutdown(d.handle)
}

func (d *qemuDomain) ForcedPowerOff(ctx context.Context) error {
	return d.conn.DomainDestroy(d.handle)
}

func (d *qemuDomain) Shutdown(ctx context.Context) error {
	return d.conn.DomainShutdown(d.handle)
}

func (d *qemuDomain) Restart(ctx context.Context) error {
	return d.conn.DomainReboot(d.handle, 0)
}

