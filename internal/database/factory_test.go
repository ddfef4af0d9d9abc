package database

import (
	"context"
	"testing"

	"molt-mart/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("memory is migrated and usable", func(t *testing.T) {
		db, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"}, nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() error = %v", err)
		}
		defer db.(*SQLiteDatabase).Close()

		if err := db.CreateArtifact(context.Background(), sampleArtifact("a1")); err != nil {
			t.Errorf("CreateArtifact() error = %v", err)
		}
	})

	t.Run("sqlite refuses an unmigrated file", func(t *testing.T) {
		_, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}, nil)
		if err == nil {
			t.Fatal("NewDatabaseFromConfig() accepted an unmigrated database")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "oracle"}, nil)
		if err == nil {
			t.Fatal("NewDatabaseFromConfig() accepted unknown type")
		}
	})
}
