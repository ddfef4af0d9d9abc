package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"molt-mart/internal/mart"
)

// FileSystemStore is a filesystem-backed implementation of the BlobStore
// interface. Blob paths map directly onto files below the root:
//
//	<root>/templates/<sellerID>/<slug>.zip
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a filesystem store rooted at the given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// resolve maps a blob path to a file path under the root, rejecting
// anything that would escape it.
func (s *FileSystemStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob path: %s", path)
	}
	return filepath.Join(s.root, clean), nil
}

// Put stores a blob at path, overwriting any existing one. The write is
// atomic: data lands in a temp file first and is renamed into place.
func (s *FileSystemStore) Put(_ context.Context, path string, r io.Reader, size int64) error {
	destPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to finalize blob: %w", err)
	}
	success = true
	return nil
}

// Get retrieves the blob at path and writes it to w.
func (s *FileSystemStore) Get(_ context.Context, path string, w io.Writer) error {
	srcPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", mart.ErrBlobNotFound, path)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return nil
}

// Delete removes the blob at path. Missing blobs are a no-op.
func (s *FileSystemStore) Delete(_ context.Context, path string) error {
	destPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Exists reports whether a blob is stored at path.
func (s *FileSystemStore) Exists(_ context.Context, path string) (bool, error) {
	destPath, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(destPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return true, nil
}

// ValidateSetup verifies that the root directory is accessible.
func (s *FileSystemStore) ValidateSetup(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("blob root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob root is not a directory: %s", s.root)
	}
	return nil
}

// Compile-time check that FileSystemStore implements mart.BlobStore
var _ mart.BlobStore = (*FileSystemStore)(nil)
