package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"molt-mart/internal/config"
	"molt-mart/internal/mart"
)

// stores returns each BlobStore implementation under a fresh backing store.
func stores(t *testing.T) map[string]mart.BlobStore {
	t.Helper()
	fs, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	return map[string]mart.BlobStore{
		"memory":     NewMemoryStore(),
		"filesystem": fs,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("archive bytes")

			if err := store.Put(ctx, "templates/seller-1/focus.zip", bytes.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			var buf bytes.Buffer
			if err := store.Get(ctx, "templates/seller-1/focus.zip", &buf); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !bytes.Equal(buf.Bytes(), data) {
				t.Errorf("Get() = %q, want %q", buf.Bytes(), data)
			}

			exists, err := store.Exists(ctx, "templates/seller-1/focus.zip")
			if err != nil || !exists {
				t.Errorf("Exists() = %v, %v", exists, err)
			}
		})
	}
}

func TestStore_Overwrite(t *testing.T) {
	t.Parallel()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, body := range []string{"first", "second"} {
				if err := store.Put(ctx, "t/a.zip", strings.NewReader(body), int64(len(body))); err != nil {
					t.Fatalf("Put(%q) error = %v", body, err)
				}
			}
			var buf bytes.Buffer
			if err := store.Get(ctx, "t/a.zip", &buf); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if buf.String() != "second" {
				t.Errorf("Get() = %q, want overwritten content", buf.String())
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			err := store.Get(context.Background(), "templates/none.zip", &buf)
			if !errors.Is(err, mart.ErrBlobNotFound) {
				t.Errorf("Get() error = %v, want ErrBlobNotFound", err)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, "t/b.zip", strings.NewReader("x"), 1); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := store.Delete(ctx, "t/b.zip"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			exists, err := store.Exists(ctx, "t/b.zip")
			if err != nil || exists {
				t.Errorf("Exists() after delete = %v, %v", exists, err)
			}
			// Deleting again is a no-op.
			if err := store.Delete(ctx, "t/b.zip"); err != nil {
				t.Errorf("second Delete() error = %v", err)
			}
		})
	}
}

func TestStore_SizeMismatch(t *testing.T) {
	t.Parallel()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Put(context.Background(), "t/c.zip", strings.NewReader("abc"), 99)
			if err == nil {
				t.Fatal("Put() with wrong size succeeded")
			}
			// A failed put must not leave a readable blob behind.
			exists, _ := store.Exists(context.Background(), "t/c.zip")
			if exists {
				t.Error("blob exists after failed Put()")
			}
		})
	}
}

func TestFileSystemStore_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()
	store, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	for _, path := range []string{"../outside.zip", "a/../../outside.zip", "/etc/passwd", "..", "."} {
		if err := store.Put(context.Background(), path, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Put(%q) accepted an escaping path", path)
		}
		if _, err := store.Exists(context.Background(), path); err == nil {
			t.Errorf("Exists(%q) accepted an escaping path", path)
		}
	}
}

func TestFileSystemStore_PutIsAtomic(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store, err := NewFileSystemStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	// A size-mismatched write must leave no temp file debris.
	if err := store.Put(context.Background(), "t/d.zip", strings.NewReader("abc"), 99); err == nil {
		t.Fatal("Put() with wrong size succeeded")
	}
	entries, err := os.ReadDir(filepath.Join(root, "t"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		t.Errorf("leftover file after failed Put(): %s", e.Name())
	}
}

func TestFileSystemStore_ValidateSetup(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store, err := NewFileSystemStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	if err := store.ValidateSetup(context.Background()); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}

	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if err := store.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() succeeded with missing root")
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     config.BlobConfig
		want    string
		wantErr bool
	}{
		{name: "memory", cfg: config.BlobConfig{Type: "memory"}, want: "*blob.MemoryStore"},
		{name: "filesystem", cfg: config.BlobConfig{Type: "filesystem", FSRoot: t.TempDir()}, want: "*blob.FileSystemStore"},
		{name: "filesystem without root", cfg: config.BlobConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown", cfg: config.BlobConfig{Type: "tape"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStoreFromConfig(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewStoreFromConfig() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStoreFromConfig() error = %v", err)
			}
			if got := fmt.Sprintf("%T", store); got != tt.want {
				t.Errorf("store type = %s, want %s", got, tt.want)
			}
		})
	}
}
