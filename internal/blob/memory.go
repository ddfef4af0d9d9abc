package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"molt-mart/internal/mart"
)

// MemoryStore is an in-memory implementation of the BlobStore interface.
// It is useful for tests and throwaway environments and is safe for
// concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores a blob at path, overwriting any existing one.
func (m *MemoryStore) Put(_ context.Context, path string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = data
	return nil
}

// Get retrieves the blob at path and writes it to w.
func (m *MemoryStore) Get(_ context.Context, path string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[path]
	if !ok {
		return fmt.Errorf("%w: %s", mart.ErrBlobNotFound, path)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Delete removes the blob at path. Missing blobs are a no-op.
func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

// Exists reports whether a blob is stored at path.
func (m *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[path]
	return ok, nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(context.Context) error {
	return nil
}

// Compile-time check that MemoryStore implements mart.BlobStore
var _ mart.BlobStore = (*MemoryStore)(nil)
