package config

import (
	"bytes"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := NewConfig("/srv/moltmart")

	if cfg.LogDir != filepath.Join("/srv/moltmart", "log") {
		t.Errorf("LogDir = %s", cfg.LogDir)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Policy.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.Policy.MaxUploadBytes)
	}
	if cfg.Policy.RejectAtFindings != 3 || cfg.Policy.ProbationUploads != 3 {
		t.Errorf("Policy = %+v", cfg.Policy)
	}
	if len(cfg.Policy.Categories) != 6 || len(cfg.Policy.Licenses) != 5 {
		t.Errorf("vocabularies = %v / %v", cfg.Policy.Categories, cfg.Policy.Licenses)
	}
	if cfg.Blob.Type != "filesystem" || cfg.Blob.FSRoot != filepath.Join("/srv/moltmart", "blobs") {
		t.Errorf("Blob = %+v", cfg.Blob)
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DataDir != filepath.Join("/srv/moltmart", "data") {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Counter.Type != "memory" {
		t.Errorf("Counter = %+v", cfg.Counter)
	}
	if cfg.Encryption.Type != "" {
		t.Errorf("Encryption.Type = %q, want plaintext default", cfg.Encryption.Type)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()
	cfg := NewConfig("/srv/moltmart")
	cfg.Server.APIKeys = []APIKey{
		{Token: "tok-1", UserID: "seller-1", Seller: true},
		{Token: "tok-2", UserID: "buyer-1"},
	}
	cfg.Counter = CounterConfig{Type: "redis", RedisURL: "redis://localhost:6379/0"}
	cfg.Encryption.Type = "age"

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestRead_PartialConfig(t *testing.T) {
	t.Parallel()
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(`
base_dir = "/srv/moltmart"

[counter]
type = "redis"
redis_url = "redis://localhost:6379/0"
`))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.BaseDir != "/srv/moltmart" {
		t.Errorf("BaseDir = %s", cfg.BaseDir)
	}
	if cfg.Counter.Type != "redis" {
		t.Errorf("Counter = %+v", cfg.Counter)
	}
	// Unset sections stay zero; defaults come from NewConfig, not Read.
	if cfg.Server.Addr != "" {
		t.Errorf("Server.Addr = %q, want empty", cfg.Server.Addr)
	}
}

func TestRead_Invalid(t *testing.T) {
	t.Parallel()
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("not valid = = toml")); err == nil {
		t.Error("Read() accepted invalid TOML")
	}
}

func TestInit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "moltmart.toml")
	cfg := NewConfig(dir)

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("ReadFromFile() mismatch:\n got %+v\nwant %+v", got, cfg)
	}

	// A second init must not clobber the existing file.
	if err := Init(path, cfg); err == nil {
		t.Error("Init() overwrote an existing config")
	}
}

func TestReadFromFile_Missing(t *testing.T) {
	t.Parallel()
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("ReadFromFile() succeeded for a missing file")
	}
}
