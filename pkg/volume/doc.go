/*
Package volume provides per-environment disk staging for resource drivers
that clone an image rather than boot it directly.

It provides one host directory per environment identifier through a
small Pool interface, in the same driver-registry shape the rest of the
framework uses for pluggable backends (pkg/hooks, pkg/imageprovider).
pkg/resources does not import it: when a Resources configuration's
disk.clone section is set, the QEMU driver creates and removes its clone
storage-pool directory itself.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                      Pool Architecture                       │
	└─────┬───────────────────────────────────────────────────────┘
	      │
	      ▼
	┌──────────────────────────────────────────────────────────────┐
	│                        Manager                                │
	│  • Coordinates pool operations across backends                │
	│  • Routes requests to the named pool                          │
	└────────┬───────────────────────────────────────────────────────┘
	         │
	         ▼
	┌────────────────────┐
	│    Pool (interface) │
	│  • Create(id)        │
	│  • Delete(id)        │
	│  • Path(id)          │
	└────────┬────────────┘
	         │
	         ▼
	┌────────────────────┐
	│     LocalPool       │
	│  basePath/<id>/     │
	└────────────────────┘

# Core Components

Pool: Create/Delete/Path keyed by environment identifier, one subdirectory
per environment so concurrently allocated environments never collide.

LocalPool: the only implementation today. Rooted at a configurable
basePath (DefaultPoolsPath if unset), it is plain os.MkdirAll/os.RemoveAll
underneath — there is no ecosystem library that does anything useful for
"make a directory, delete a directory later," so this part stays on the
standard library by design.

Manager: a name-keyed registry of Pool implementations, mirroring
pkg/hooks's registry so a future network-backed pool (NFS, Ceph) can be
added behind the same Manager calls.

# Usage

Staging a clone directory before defining a libvirt pool over it:

	pool, _ := volume.NewLocalPool(cfg.Disk.Clone.StoragePoolPath)
	path, err := pool.Create(identifier)
	// ... clone the resolved image into path, then storagePoolDefineXML
	// pointing libvirt at path ...
	defer pool.Delete(identifier) // on deallocate
*/
package volume
