package imageprovider

import (
	"context"

	"github.com/withsecure/see-go/pkg/types"
)

// DummyProvider resolves to its URI verbatim, performing no freshness
// check, download, or checksum verification. It exists so a descriptor can
// explicitly name a provider (exercising the registry/Factory path) while
// behaving exactly like the bare-path shortcut; useful for local images
// that are already at their final path.
type DummyProvider struct {
	path string
}

// Resolve returns the configured path unchanged.
func (p *DummyProvider) Resolve(ctx context.Context) (string, error) {
	return p.path, nil
}

func init() {
	Register("dummy", func(descriptor types.ImageDescriptor) (Provider, error) {
		path := descriptor.URI
		if path == "" {
			path = descriptor.Path
		}
		return &DummyProvider{path: path}, nil
	})
}
