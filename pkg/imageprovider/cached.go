package imageprovider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/withsecure/see-go/pkg/log"
	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/types"
)

// RemoteMetadata is what a Fetcher reports about the object an image
// descriptor names, without having downloaded it yet.
type RemoteMetadata struct {
	LastModified time.Time
	Checksum     Checksum
}

// Fetcher is the seam a concrete remote backend implements. CachedResolver
// contains no backend-specific code; everything bucket/container/pool
// specific lives behind this interface in the backend's own package.
type Fetcher interface {
	Metadata(ctx context.Context, uri string) (RemoteMetadata, error)
	Fetch(ctx context.Context, uri string, w io.Writer) error
}

// CachedResolver implements the freshness/download/verify policy common to
// every remote image backend (spec.md §4.2): skip the download if the
// locally cached copy is no older than the remote's last-modified time,
// otherwise download to a ".part" sibling, verify its checksum, and
// atomically rename it into place. If a ".part" sibling already exists —
// another resolution is mid-download — this resolver never waits for it:
// it immediately falls back to the newest other image already present in
// the target's directory, or fails ErrNoViableImage if there is none.
type CachedResolver struct {
	Fetcher      Fetcher
	ProviderName string
}

// NewCachedResolver creates a resolver backed by fetcher, reporting
// providerName in logs and metrics.
func NewCachedResolver(providerName string, fetcher Fetcher) *CachedResolver {
	return &CachedResolver{
		Fetcher:      fetcher,
		ProviderName: providerName,
	}
}

// Resolve implements Provider for a single descriptor by binding it to r.
func (r *CachedResolver) Resolve(ctx context.Context, descriptor types.ImageDescriptor) (string, error) {
	target := targetPath(descriptor)
	logger := log.WithComponent("imageprovider")

	meta, err := r.Fetcher.Metadata(ctx, descriptor.URI)
	if err != nil {
		if fi, statErr := os.Stat(target); statErr == nil && !fi.IsDir() {
			logger.Warn().Err(err).Str("target", target).
				Msg("remote metadata unavailable, using existing cached image")
			metrics.ImageResolutionsTotal.WithLabelValues(r.ProviderName, "cached_fallback").Inc()
			return target, nil
		}
		metrics.ImageResolutionsTotal.WithLabelValues(r.ProviderName, "not_found").Inc()
		return "", fmt.Errorf("%w: %v", types.ErrImageNotFound, err)
	}

	if fi, err := os.Stat(target); err == nil && !fi.IsDir() && !fi.ModTime().Before(meta.LastModified) {
		metrics.ImageResolutionsTotal.WithLabelValues(r.ProviderName, "cached").Inc()
		return target, nil
	}

	path, err := r.download(ctx, descriptor, target, meta)
	if err != nil {
		metrics.ImageResolutionsTotal.WithLabelValues(r.ProviderName, "download_failed").Inc()
		return "", err
	}
	metrics.ImageResolutionsTotal.WithLabelValues(r.ProviderName, "downloaded").Inc()
	return path, nil
}

func (r *CachedResolver) download(ctx context.Context, descriptor types.ImageDescriptor, target string, meta RemoteMetadata) (string, error) {
	partPath := target + ".part"

	if _, err := os.Stat(partPath); err == nil {
		return r.olderSibling(target)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return r.olderSibling(target)
		}
		return "", fmt.Errorf("failed to create download file: %w", err)
	}

	timer := metrics.NewTimer()
	fetchErr := r.Fetcher.Fetch(ctx, descriptor.URI, f)
	closeErr := f.Close()
	timer.ObserveDurationVec(metrics.ImageDownloadDuration, r.ProviderName)

	if fetchErr != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("failed to download image: %w", fetchErr)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("failed to finalize download: %w", closeErr)
	}

	if err := Verify(partPath, meta.Checksum); err != nil {
		os.Remove(partPath)
		metrics.ImageChecksumMismatchTotal.WithLabelValues(r.ProviderName).Inc()
		return "", err
	}

	if err := os.Rename(partPath, target); err != nil {
		return "", fmt.Errorf("failed to finalize image: %w", err)
	}

	return target, nil
}

// olderSibling is the concurrent-download fallback: rather than wait for
// whoever holds the ".part" file to finish, pick the most recently modified
// other file already sitting in target's directory and use it as-is. This
// mirrors the upstream S3 provider's _older_image, which answers the same
// situation by walking the bucket's version listing for the newest version
// that already exists on disk, skipping target itself.
func (r *CachedResolver) olderSibling(target string) (string, error) {
	dir := filepath.Dir(target)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrNoViableImage, err)
	}

	var best string
	var bestModTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if path == target {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestModTime) {
			best = path
			bestModTime = info.ModTime()
		}
	}

	if best == "" {
		return "", fmt.Errorf("%w: no older image available alongside %s", types.ErrNoViableImage, target)
	}
	return best, nil
}

// targetPath derives the on-disk path for a descriptor: if Path names an
// existing directory the image is placed inside it under a name stable
// across resolutions of the same descriptor; otherwise Path is the target
// file itself, including when Path does not exist yet (it is never treated
// as a directory to be created).
func targetPath(descriptor types.ImageDescriptor) string {
	if descriptor.Path == "" {
		return descriptor.Name
	}

	if fi, err := os.Stat(descriptor.Path); err == nil && fi.IsDir() {
		id := descriptor.Name
		if id == "" {
			id = descriptor.Provider
		}
		return filepath.Join(descriptor.Path, id)
	}

	return descriptor.Path
}
