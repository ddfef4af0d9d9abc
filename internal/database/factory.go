package database

import (
	"fmt"
	"path/filepath"

	"molt-mart/internal/config"
	"molt-mart/internal/database/migrations"
	"molt-mart/internal/mart"
)

// DatabaseFileName is the SQLite database file name inside DataDir.
const DatabaseFileName = "moltmart.db"

// NewDatabaseFromConfig creates a database instance based on the
// configuration. The memory type is backed by an in-memory SQLite database
// with migrations applied; it exists for tests and throwaway runs.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock mart.Clock) (mart.Database, error) {
	switch cfg.Type {
	case "sqlite":
		path := filepath.Join(cfg.DataDir, DatabaseFileName)
		db, err := NewSQLiteDatabase(path, clock)
		if err != nil {
			return nil, err
		}
		if err := migrations.CheckDBMigrationStatus(db.DB()); err != nil {
			db.Close()
			return nil, fmt.Errorf("database at %s: %w", path, err)
		}
		return db, nil
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", clock)
		if err != nil {
			return nil, err
		}
		if err := migrations.MigrateUp(db.DB()); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
