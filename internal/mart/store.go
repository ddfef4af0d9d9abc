package mart

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound is returned by BlobStore.Get when no blob exists at the
// requested path. Delivery treats it as a signal to fall back to preview
// fragments rather than as a hard failure.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the durable archive storage backend, keyed by path.
// All operations use io.Reader/io.Writer so backends can stream without
// holding a second copy of the archive in memory. Every call is scoped to
// the surrounding request via ctx.
type BlobStore interface {
	// Put stores size bytes read from r at the given path, overwriting any
	// existing blob. Storing the same path twice is safe.
	Put(ctx context.Context, path string, r io.Reader, size int64) error

	// Get retrieves the blob at path and writes it to w.
	// Returns ErrBlobNotFound if no blob exists at path.
	Get(ctx context.Context, path string, w io.Writer) error

	// Delete removes the blob at path. Deleting a missing blob is a no-op;
	// ingestion uses Delete for best-effort cleanup after partial failures.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a blob is stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// ValidateSetup verifies that the store is accessible and configured.
	ValidateSetup(ctx context.Context) error
}
