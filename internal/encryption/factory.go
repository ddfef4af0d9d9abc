package encryption

import (
	"fmt"

	"molt-mart/internal/config"
	"molt-mart/internal/mart"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. An empty type means at-rest encryption is disabled and blobs are
// stored as uploaded; callers get a nil Encryptor in that case.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (mart.Encryptor, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
