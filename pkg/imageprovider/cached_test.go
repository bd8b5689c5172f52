package imageprovider

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/withsecure/see-go/pkg/types"
)

// memoryFetcher is an in-memory Fetcher standing in for a real remote
// backend in tests, letting each test control LastModified/content/
// checksum/failure independently of any network service.
type memoryFetcher struct {
	mu           sync.Mutex
	content      []byte
	lastModified time.Time
	checksum     Checksum
	metaErr      error
	fetchErr     error
	fetchCalls   int
}

func (f *memoryFetcher) Metadata(ctx context.Context, uri string) (RemoteMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaErr != nil {
		return RemoteMetadata{}, f.metaErr
	}
	return RemoteMetadata{LastModified: f.lastModified, Checksum: f.checksum}, nil
}

func (f *memoryFetcher) Fetch(ctx context.Context, uri string, w io.Writer) error {
	f.mu.Lock()
	f.fetchCalls++
	err := f.fetchErr
	content := f.content
	f.mu.Unlock()
	if err != nil {
		return err
	}
	_, werr := w.Write(content)
	return werr
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func TestResolveDownloadsWhenNotCached(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "image.qcow2")
	content := []byte("disk-bytes")

	fetcher := &memoryFetcher{
		content:      content,
		lastModified: time.Now(),
		checksum:     Checksum{Algorithm: "md5", Value: md5Hex(content)},
	}
	resolver := NewCachedResolver("test", fetcher)

	path, err := resolver.Resolve(context.Background(), types.ImageDescriptor{Path: target, URI: "mem://image"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != target {
		t.Fatalf("Resolve() path = %q, want %q", path, target)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("downloaded content = %q, want %q", got, content)
	}
}

func TestResolveSkipsDownloadWhenFresh(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "image.qcow2")
	if err := os.WriteFile(target, []byte("already-here"), 0644); err != nil {
		t.Fatal(err)
	}

	fetcher := &memoryFetcher{
		lastModified: time.Now().Add(-time.Hour), // older than the cached file
	}
	resolver := NewCachedResolver("test", fetcher)

	path, err := resolver.Resolve(context.Background(), types.ImageDescriptor{Path: target, URI: "mem://image"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != target {
		t.Fatalf("Resolve() path = %q, want %q", path, target)
	}

	fetcher.mu.Lock()
	calls := fetcher.fetchCalls
	fetcher.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no download for a fresh cached image, got %d fetch calls", calls)
	}
}

func TestResolveRedownloadsWhenStale(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "image.qcow2")
	if err := os.WriteFile(target, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(target, old, old); err != nil {
		t.Fatal(err)
	}

	content := []byte("fresh-bytes")
	fetcher := &memoryFetcher{
		content:      content,
		lastModified: time.Now(),
		checksum:     Checksum{Algorithm: "md5", Value: md5Hex(content)},
	}
	resolver := NewCachedResolver("test", fetcher)

	path, err := resolver.Resolve(context.Background(), types.ImageDescriptor{Path: target, URI: "mem://image"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("expected image refreshed with new content, got %q", got)
	}
}

func TestResolveChecksumMismatchRemovesPartAndFails(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "image.qcow2")

	fetcher := &memoryFetcher{
		content:      []byte("corrupted-in-transit"),
		lastModified: time.Now(),
		checksum:     Checksum{Algorithm: "md5", Value: "0000000000000000000000000000000"},
	}
	resolver := NewCachedResolver("test", fetcher)

	_, err := resolver.Resolve(context.Background(), types.ImageDescriptor{Path: target, URI: "mem://image"})
	if !errors.Is(err, types.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	if _, statErr := os.Stat(target + ".part"); !os.IsNotExist(statErr) {
		t.Fatal("expected .part file to be removed after checksum mismatch")
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatal("expected target to not exist after checksum mismatch")
	}
}

func TestResolveConcurrentDownloadReturnsOlderSiblingImmediately(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "image.qcow2")
	partPath := target + ".part"

	older := filepath.Join(dir, "image-v1.qcow2")
	if err := os.WriteFile(older, []byte("older-version"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(partPath, []byte("in-progress"), 0644); err != nil {
		t.Fatal(err)
	}

	fetcher := &memoryFetcher{lastModified: time.Now()}
	resolver := NewCachedResolver("test", fetcher)

	done := make(chan struct{})
	var path string
	var resolveErr error
	go func() {
		path, resolveErr = resolver.Resolve(context.Background(), types.ImageDescriptor{Path: target, URI: "mem://image"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Resolve() did not return immediately alongside an in-progress .part file")
	}
	if resolveErr != nil {
		t.Fatalf("Resolve() error = %v", resolveErr)
	}
	if path != older {
		t.Fatalf("Resolve() path = %q, want the older sibling %q", path, older)
	}

	fetcher.mu.Lock()
	calls := fetcher.fetchCalls
	fetcher.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no download while another download is in progress, got %d fetch calls", calls)
	}

	// the in-progress .part file must be left untouched for its owner to finish.
	if _, statErr := os.Stat(partPath); statErr != nil {
		t.Fatalf("expected .part file to remain, stat error = %v", statErr)
	}
}

func TestResolveConcurrentDownloadFailsWhenNoOlderSiblingExists(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "image.qcow2")
	partPath := target + ".part"
	if err := os.WriteFile(partPath, []byte("in-progress"), 0644); err != nil {
		t.Fatal(err)
	}

	fetcher := &memoryFetcher{lastModified: time.Now()}
	resolver := NewCachedResolver("test", fetcher)

	_, err := resolver.Resolve(context.Background(), types.ImageDescriptor{Path: target, URI: "mem://image"})
	if !errors.Is(err, types.ErrNoViableImage) {
		t.Fatalf("expected ErrNoViableImage, got %v", err)
	}
}

func TestResolveFallsBackToCachedImageWhenMetadataUnavailable(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "image.qcow2")
	if err := os.WriteFile(target, []byte("cached"), 0644); err != nil {
		t.Fatal(err)
	}

	fetcher := &memoryFetcher{metaErr: errors.New("remote unreachable")}
	resolver := NewCachedResolver("test", fetcher)

	path, err := resolver.Resolve(context.Background(), types.ImageDescriptor{Path: target, URI: "mem://image"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != target {
		t.Fatalf("Resolve() path = %q, want %q", path, target)
	}
}

func TestResolveImageNotFoundWhenMetadataUnavailableAndNoCache(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "image.qcow2")

	fetcher := &memoryFetcher{metaErr: errors.New("remote unreachable")}
	resolver := NewCachedResolver("test", fetcher)

	_, err := resolver.Resolve(context.Background(), types.ImageDescriptor{Path: target, URI: "mem://image"})
	if !errors.Is(err, types.ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestResolveBarePathShortcutSkipsProviderLookup(t *testing.T) {
	path, err := Resolve(context.Background(), types.ImageDescriptor{Path: "/var/lib/see/images/base.qcow2"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != "/var/lib/see/images/base.qcow2" {
		t.Fatalf("Resolve() path = %q, want bare path unchanged", path)
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	_, err := Resolve(context.Background(), types.ImageDescriptor{Provider: "no-such-provider", URI: "x"})
	if !errors.Is(err, types.ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestResolveDummyProvider(t *testing.T) {
	path, err := Resolve(context.Background(), types.ImageDescriptor{Provider: "dummy", URI: "/var/lib/see/images/other.qcow2"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != "/var/lib/see/images/other.qcow2" {
		t.Fatalf("Resolve() path = %q, want dummy's URI unchanged", path)
	}
}
