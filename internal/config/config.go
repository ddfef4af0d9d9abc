package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for the moltmart service.
type Config struct {
	BaseDir string `toml:"base_dir"`
	LogDir  string `toml:"log_dir"`

	Server     ServerConfig     `toml:"server"`
	Policy     PolicyConfig     `toml:"policy"`
	Blob       BlobConfig       `toml:"blob"`
	Database   DatabaseConfig   `toml:"database"`
	Counter    CounterConfig    `toml:"counter"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr        string   `toml:"addr"`         // API listener, default ":8080"
	MetricsAddr string   `toml:"metrics_addr"` // Prometheus listener, default ":9090"
	SourceBase  string   `toml:"source_base"`  // canonical listing URL prefix
	APIKeys     []APIKey `toml:"api_keys"`
}

// APIKey maps a bearer token to a caller identity.
type APIKey struct {
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
	Seller bool   `toml:"seller"`
}

// PolicyConfig holds the tunable trust policy. The defaults mirror the
// values the marketplace has always used; they are configuration, not
// invariants.
type PolicyConfig struct {
	MaxUploadBytes   int64 `toml:"max_upload_bytes"`   // default 10 MiB
	RejectAtFindings int   `toml:"reject_at_findings"` // default 3
	ProbationUploads int   `toml:"probation_uploads"`  // default 3
	RateLimitPerMin  int   `toml:"rate_limit_per_min"` // default 30, 0 disables

	// Categories and Licenses restrict listing metadata on upload.
	// Empty lists disable the restriction.
	Categories []string `toml:"categories,omitempty"`
	Licenses   []string `toml:"licenses,omitempty"`
}

// BlobConfig configures the archive blob store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", or "s3"

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3"). When the static
	// credentials are empty the default AWS credential chain applies.
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// DatabaseConfig configures the artifact metadata store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CounterConfig configures the shared counter service used for rate
// limiting and rolling download tallies.
type CounterConfig struct {
	Type     string `toml:"type"`                // "memory" or "redis"
	RedisURL string `toml:"redis_url,omitempty"` // only used for type=redis
}

// EncryptionConfig holds paths to the age key pair used for at-rest blob
// encryption. Leave Type empty to store blobs in plaintext.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "", "age", or "test"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
			SourceBase:  "https://molt.mart",
		},
		Policy: PolicyConfig{
			MaxUploadBytes:   10 << 20,
			RejectAtFindings: 3,
			ProbationUploads: 3,
			RateLimitPerMin:  30,
			Categories:       []string{"Basic Skills", "Mindset", "Workflows", "Technical", "Creative", "Knowledge"},
			Licenses:         []string{"MIT", "Apache-2.0", "GPL-3.0", "Commercial", "Custom"},
		},
		Blob: BlobConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "blobs"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Counter: CounterConfig{
			Type: "memory",
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "moltmart.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "moltmart.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
