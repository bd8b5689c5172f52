package resources

import (
	"context"
	"fmt"
	"os"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog"

	"github.com/withsecure/see-go/pkg/imageprovider"
	"github.com/withsecure/see-go/pkg/log"
	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/types"
)

// DefaultVBoxHypervisorURI is used when a Resources configuration does not
// name one explicitly.
const DefaultVBoxHypervisorURI = "vbox:///session"

// vboxResources is the VirtualBox driver: like QEMU it goes through
// libvirt, but has no network or storage pool concept of its own (the
// upstream's VBox Resources never overrides those properties), so the
// disk image must already be in a bootable location and network
// attachment is out of scope.
type vboxResources struct {
	identifier string
	cfg        types.ResourcesConfig
	logger     zerolog.Logger

	conn          *libvirt.Libvirt
	hypervisorURI string
	domain        *qemuDomain
}

// NewVBoxResources constructs the VirtualBox driver. Allocation is
// deferred to Allocate; construction never touches libvirt.
func NewVBoxResources(cfg types.ResourcesConfig, identifier string) (Resources, error) {
	return &vboxResources{
		identifier: identifier,
		cfg:        cfg,
		logger:     log.WithEnvironmentID(identifier).With().Str("driver", DriverVBox).Logger(),
	}, nil
}

func (r *vboxResources) Allocate(ctx context.Context) error {
	timer := metrics.NewTimer()

	uri := r.cfg.HypervisorURI
	if uri == "" {
		uri = DefaultVBoxHypervisorURI
	}
	conn, err := libvirt.ConnectToURI(libvirt.ConnectURI(uri))
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverVBox, "error").Inc()
		return fmt.Errorf("%w: failed to connect to %s: %v", types.ErrResourceUnavailable, uri, err)
	}
	r.conn = conn
	r.hypervisorURI = uri

	descriptor, err := imageprovider.DescriptorFromConfig(r.cfg.Disk.Image)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverVBox, "error").Inc()
		return err
	}
	diskPath, err := imageprovider.Resolve(ctx, descriptor)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverVBox, "error").Inc()
		return err
	}

	baseXML, err := os.ReadFile(r.cfg.Domain.ConfigurationPath)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverVBox, "error").Inc()
		return fmt.Errorf("failed to read domain configuration %s: %w", r.cfg.Domain.ConfigurationPath, err)
	}

	doc, err := BuildDomainXML(r.identifier, string(baseXML), diskPath, "")
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverVBox, "error").Inc()
		return err
	}

	dom, err := r.conn.DomainDefineXML(doc)
	if err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverVBox, "error").Inc()
		return fmt.Errorf("%w: failed to define domain: %v", types.ErrOperationFailed, err)
	}
	r.domain = &qemuDomain{conn: r.conn, handle: dom}

	if err := r.conn.DomainCreate(dom); err != nil {
		metrics.ResourceAllocationsTotal.WithLabelValues(DriverVBox, "error").Inc()
		return fmt.Errorf("%w: failed to start domain: %v", types.ErrOperationFailed, err)
	}

	metrics.ResourceAllocationsTotal.WithLabelValues(DriverVBox, "success").Inc()
	timer.ObserveDurationVec(metrics.DomainCreateDuration, DriverVBox)
	return nil
}

func (r *vboxResources) Deallocate(ctx context.Context) error {
	if r.domain != nil {
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
	if r.conn != nil {
		if err := r.conn.Disconnect(); err != nil {
			r.logger.Warn().Err(err).Msg("unable to close hypervisor connection")
		}
	}
	return nil
}

// Hypervisor returns the libvirt connection handle, guarded the same way
// as the QEMU driver's (spec.md §4.3: getters must fail resource-unavailable
// when a liveness guard is violated; with no error return here, that means
// returning nil, same as "this driver has no such handle").
func (r *vboxResources) Hypervisor() any {
	if r.conn == nil || !r.connectionAlive(context.Background()) {
		return nil
	}
	return r.conn
}

func (r *vboxResources) Domain() Domain {
	if r.domain == nil || !r.connectionAlive(context.Background()) {
		return nil
	}
	return r.domain
}

func (r *vboxResources) connectionAlive(ctx context.Context) bool {
	return libvirtConnectionAlive(ctx, r.conn, r.hypervisorURI, r.logger)
}

// Network always returns nil: this driver never attaches a libvirt
// network, matching the upstream's unoverridden property.
func (r *vboxResources) Network() any { return nil }

// StoragePool always returns nil: the VirtualBox driver boots the
// resolved disk image directly rather than cloning it into a pool.
func (r *vboxResources) StoragePool() any { return nil }
