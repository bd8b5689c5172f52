/*
Package imageprovider implements spec.md §4.2's image resolution contract:
turning a disk's "image" configuration entry into a local filesystem path
a resources driver can boot or clone from.

# Two shapes of image configuration

A disk.image value is either:

  - a bare string path, the backward-compatible shortcut: returned as-is,
    with no freshness check, download, or verification.
  - a descriptor naming provider, uri, name and provider_configuration,
    resolved by looking the provider up in the registry and asking it to
    resolve itself.

DescriptorFromConfig normalizes either shape (as decoded from an
environment's JSON configuration) into a types.ImageDescriptor; Resolve
implements the branch between them.

# Registry

Concrete provider factories register themselves by name via Register,
mirroring pkg/hooks's dynamic-lookup registry, for the same reason: Go has
no string-based class import, so "construct the class named by this
string" has to go through an explicit map populated at init() time instead.

# Resolution policy vs. backend

CachedResolver implements the policy every remote image backend shares:

	┌──────────────────── CachedResolver.Resolve ───────────────┐
	│                                                              │
	│ 1. ask Fetcher.Metadata for the remote's last-modified time │
	│    and expected checksum                                    │
	│ 2. if a local copy exists and is not older than the remote, │
	│    return it unchanged (no download)                        │
	│ 3. otherwise download to "<target>.part":                  │
	│    - if ".part" already exists, another resolution is       │
	│      already downloading it: immediately fall back to the   │
	│      newest other image already in the target's directory,  │
	│      or fail no-viable-image if there is none                │
	│    - else create ".part" exclusively, stream the fetch,     │
	│      verify its checksum, then atomically rename it onto    │
	│      the target                                             │
	│ 4. a checksum mismatch removes ".part" and fails             │
	└──────────────────────────────────────────────────────────┘

This package never implements a concrete backend — no S3, no OpenStack
Glance, no libvirt storage pool volume lookup. Those are out of scope
(spec.md §1's "not a general-purpose asset store"): any of them would
implement only the small Fetcher interface (Metadata, Fetch) and get the
freshness/concurrency/checksum policy above for free. DummyProvider is the
one concrete provider this package ships, and it exists to exercise the
registry path (a descriptor that explicitly names a provider) without a
real remote — it behaves exactly like the bare-path shortcut.

# Checksums

Verify supports two checksum.Algorithm values: "md5" is a single
whole-file digest; "multipart-etag" reproduces the convention object
storage services use for a multipart upload's ETag (chunk the file at
PartSize, MD5 each chunk, and if there was more than one chunk, the final
value is the MD5 of the concatenated chunk digests with "-<chunk count>"
appended; a single chunk is identical to the whole-file MD5 and carries no
suffix).
*/
package imageprovider
