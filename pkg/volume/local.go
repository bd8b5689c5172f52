package volume

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultPoolsPath is the base directory under which per-environment
	// staging directories are created when no explicit path is configured.
	DefaultPoolsPath = "/var/lib/see/pools"
)

// Pool stages per-environment storage directories on the host, for
// example as the backing directory of a libvirt storage pool. Each
// identifier gets its own
// subdirectory so concurrently allocated environments never share disk
// state.
type Pool interface {
	// Create creates (if absent) the staging directory for identifier and
	// returns its host path.
	Create(identifier string) (string, error)

	// Delete removes the staging directory and everything under it.
	Delete(identifier string) error

	// Path returns the host path for identifier without creating it.
	Path(identifier string) string
}

// LocalPool implements Pool directly on the local filesystem, rooted at
// basePath.
type LocalPool struct {
	basePath string
}

// NewLocalPool creates a local pool rooted at basePath, creating basePath
// itself if it does not already exist.
func NewLocalPool(basePath string) (*LocalPool, error) {
	if basePath == "" {
		basePath = DefaultPoolsPath
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pools directory: %w", err)
	}

	return &LocalPool{basePath: basePath}, nil
}

// Create creates the staging directory for identifier.
func (p *LocalPool) Create(identifier string) (string, error) {
	path := p.Path(identifier)

	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create pool directory: %w", err)
	}

	return path, nil
}

// Delete removes the staging directory for identifier. Deleting a pool
// that was never created is not an error.
func (p *LocalPool) Delete(identifier string) error {
	path := p.Path(identifier)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete pool directory: %w", err)
	}

	return nil
}

// Path returns the host path for identifier.
func (p *LocalPool) Path(identifier string) string {
	return filepath.Join(p.basePath, identifier)
}

// Manager dispatches to a named Pool implementation. Only "local" exists
// today; the indirection is kept so a future network-backed pool (NFS,
// Ceph) can be added behind the same Manager calls.
type Manager struct {
	pools map[string]Pool
}

// NewManager creates a Manager with the default local pool registered
// under the name "local".
func NewManager() (*Manager, error) {
	local, err := NewLocalPool("")
	if err != nil {
		return nil, fmt.Errorf("failed to create local pool: %w", err)
	}

	return &Manager{
		pools: map[string]Pool{
			"local": local,
		},
	}, nil
}

// GetPool returns the named pool.
func (m *Manager) GetPool(name string) (Pool, error) {
	pool, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("unknown pool: %s", name)
	}
	return pool, nil
}

// CreatePool creates identifier's staging directory in the named pool.
func (m *Manager) CreatePool(pool, identifier string) (string, error) {
	p, err := m.GetPool(pool)
	if err != nil {
		return "", err
	}
	return p.Create(identifier)
}

// DeletePool removes identifier's staging directory from the named pool.
func (m *Manager) DeletePool(pool, identifier string) error {
	p, err := m.GetPool(pool)
	if err != nil {
		return err
	}
	return p.Delete(identifier)
}
