package imageprovider

import (
	"crypto/md5" //nolint:gosec // image integrity check, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/withsecure/see-go/pkg/types"
)

// DefaultPartSize is the chunk size used when verifying a multipart-etag
// checksum, matching the 8 MiB chunking most object-storage backends use
// for multipart uploads.
const DefaultPartSize = 8 * 1024 * 1024

// Checksum describes the expected digest of a fully-downloaded image.
// Algorithm "md5" verifies a single whole-file MD5; "multipart-etag"
// verifies against a chunked, object-storage style ETag.
type Checksum struct {
	Algorithm string
	Value     string
	PartSize  int64
}

// Verify checks that the file at path matches c, returning
// types.ErrChecksumMismatch wrapped with both digests on failure.
func Verify(path string, c Checksum) error {
	if c.Algorithm == "" || c.Value == "" {
		return nil
	}

	var (
		actual string
		err    error
	)

	switch c.Algorithm {
	case "md5":
		actual, err = md5File(path)
	case "multipart-etag":
		partSize := c.PartSize
		if partSize <= 0 {
			partSize = DefaultPartSize
		}
		actual, err = md5MultipartETag(path, partSize)
	default:
		return fmt.Errorf("unknown checksum algorithm %q", c.Algorithm)
	}
	if err != nil {
		return fmt.Errorf("failed to compute checksum: %w", err)
	}

	if actual != c.Value {
		return fmt.Errorf("%w: expected %s, got %s", types.ErrChecksumMismatch, c.Value, actual)
	}
	return nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// md5MultipartETag reproduces the object-storage convention for a
// multipart upload's ETag: the file is split into partSize chunks, each
// chunk's MD5 digest is computed, and if there was more than one chunk the
// final value is the MD5 of the concatenated per-chunk digests followed by
// "-<chunk count>". A file that fits in a single chunk has no suffix and
// is identical to its whole-file MD5.
func md5MultipartETag(path string, partSize int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var concatenated []byte
	var firstDigest [16]byte
	count := 0

	buf := make([]byte, partSize)
	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			digest := md5.Sum(buf[:n]) //nolint:gosec
			concatenated = append(concatenated, digest[:]...)
			if count == 0 {
				firstDigest = digest
			}
			count++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}

	if count <= 1 {
		if count == 0 {
			firstDigest = md5.Sum(nil) //nolint:gosec
		}
		return hex.EncodeToString(firstDigest[:]), nil
	}

	final := md5.Sum(concatenated) //nolint:gosec
	return fmt.Sprintf("%s-%d", hex.EncodeToString(final[:]), count), nil
}
