// Package imageprovider resolves an image descriptor to a local filesystem
// path, the pluggable half of spec.md §4.2: a disk's "image" entry is
// either a bare path (returned verbatim, the backward-compatible
// shortcut) or a descriptor naming a provider, a URI, and provider-specific
// configuration.
//
// Concrete remote backends (an S3 bucket, an OpenStack Glance catalog, a
// libvirt storage pool volume) are out of scope here (spec.md §1 excludes
// them); this package implements only the resolution *policy* shared by
// any such backend — freshness checking, checksum verification, and safe
// behavior when two callers resolve the same image concurrently — behind
// a small Fetcher seam a real backend would implement.
package imageprovider

import (
	"context"
	"fmt"
	"sync"

	"github.com/withsecure/see-go/pkg/types"
)

// Provider resolves an image reference to a local path, downloading or
// refreshing it as needed.
type Provider interface {
	Resolve(ctx context.Context) (string, error)
}

// Factory constructs a Provider from a descriptor's fields. Registered
// factories are looked up by name at resolution time, the same dynamic
// dispatch pkg/hooks uses for hooks (spec.md §4.5), because Go has no
// string-based class import to fall back on.
type Factory func(descriptor types.ImageDescriptor) (Provider, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds factory under name, overwriting any previous registration.
// Called from provider package init() functions.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[name]
	return factory, ok
}

// Resolve implements spec.md §4.2's provider_image property: a bare-path
// descriptor is returned verbatim with no verification; otherwise the
// descriptor's provider is looked up, constructed, and asked to resolve
// itself.
func Resolve(ctx context.Context, descriptor types.ImageDescriptor) (string, error) {
	if descriptor.IsBarePath() {
		return descriptor.Path, nil
	}

	factory, ok := Lookup(descriptor.Provider)
	if !ok {
		return "", fmt.Errorf("%w: unknown image provider %q", types.ErrImageNotFound, descriptor.Provider)
	}

	provider, err := factory(descriptor)
	if err != nil {
		return "", fmt.Errorf("failed to construct image provider %q: %w", descriptor.Provider, err)
	}

	path, err := provider.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return path, nil
}

// DescriptorFromConfig normalizes a DiskConfig.Image value (either a bare
// path string or a provider descriptor map) into an types.ImageDescriptor.
func DescriptorFromConfig(image any) (types.ImageDescriptor, error) {
	switch v := image.(type) {
	case string:
		return types.ImageDescriptor{Path: v}, nil
	case types.ImageDescriptor:
		return v, nil
	case map[string]any:
		d := types.ImageDescriptor{}
		if path, ok := v["path"].(string); ok {
			d.Path = path
		}
		if provider, ok := v["provider"].(string); ok {
			d.Provider = provider
		}
		if uri, ok := v["uri"].(string); ok {
			d.URI = uri
		}
		if name, ok := v["name"].(string); ok {
			d.Name = name
		}
		if cfg, ok := v["provider_configuration"].(map[string]any); ok {
			d.ProviderConfiguration = cfg
		}
		return d, nil
	default:
		return types.ImageDescriptor{}, fmt.Errorf("unsupported disk image configuration type %T", image)
	}
}
