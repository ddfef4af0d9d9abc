package testutil

import (
	"molt-mart/internal/encryption"
	"molt-mart/internal/mart"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() mart.Encryptor {
	return encryption.NewTestEncryptor()
}
