package testutil

import (
	"molt-mart/internal/blob"
	"molt-mart/internal/mart"
)

// NewTestBlobStore creates a new in-memory blob store for testing.
func NewTestBlobStore() mart.BlobStore {
	return blob.NewMemoryStore()
}
