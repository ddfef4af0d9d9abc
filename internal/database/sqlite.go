// Package database implements the artifact metadata store on SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"molt-mart/internal/mart"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the mart.Database interface using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	clock mart.Clock
	path  string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock falls back to the real clock.
func NewSQLiteDatabase(path string, clock mart.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = mart.RealClock{}
	}

	return &SQLiteDatabase{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a raw configured handle.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// grow beyond one.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	// Foreign keys default to OFF in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// DB exposes the underlying handle for migration checks.
func (s *SQLiteDatabase) DB() *sql.DB { return s.db }

const artifactColumns = `id, seller_id, title, slug, description, category, version, license,
	storage_path, fingerprint, preview_json, status, scan_status, findings_json,
	review_required, download_count, created_at, updated_at`

// CreateArtifact inserts a new artifact record.
func (s *SQLiteDatabase) CreateArtifact(ctx context.Context, a *mart.Artifact) error {
	previewJSON, findingsJSON, err := encodeDetails(a)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SellerID, a.Title, a.Slug, a.Description, a.Category, a.Version, a.License,
		a.StoragePath, a.Fingerprint, previewJSON, string(a.Status), a.ScanStatus, findingsJSON,
		a.ReviewRequired, a.DownloadCount, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting artifact: %w", err)
	}
	return nil
}

// GetArtifact returns the artifact with the given id, or mart.ErrNotFound.
func (s *SQLiteDatabase) GetArtifact(ctx context.Context, id string) (*mart.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mart.ErrNotFound
		}
		return nil, fmt.Errorf("finding artifact by id: %w", err)
	}
	return a, nil
}

// GetArtifactBySlug returns the seller's artifact with the given slug, or
// nil when no such artifact exists.
func (s *SQLiteDatabase) GetArtifactBySlug(ctx context.Context, sellerID, slug string) (*mart.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts WHERE seller_id = ? AND slug = ?`, sellerID, slug)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding artifact by slug: %w", err)
	}
	return a, nil
}

// UpdateArtifactUpload overwrites the upload-derived fields after a
// replace-file operation. Publication state is deliberately not part of
// this statement.
func (s *SQLiteDatabase) UpdateArtifactUpload(ctx context.Context, a *mart.Artifact) error {
	previewJSON, findingsJSON, err := encodeDetails(a)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE artifacts
		SET fingerprint = ?, preview_json = ?, scan_status = ?, findings_json = ?, updated_at = ?
		WHERE id = ?`,
		a.Fingerprint, previewJSON, a.ScanStatus, findingsJSON, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("updating artifact upload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return mart.ErrNotFound
	}
	return nil
}

// CountPublishedBySeller returns how many published artifacts the seller has.
func (s *SQLiteDatabase) CountPublishedBySeller(ctx context.Context, sellerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM artifacts WHERE seller_id = ? AND status = ?`,
		sellerID, string(mart.StatusPublished)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting published artifacts: %w", err)
	}
	return count, nil
}

// RecordPurchase upserts a purchase row; recording the same pair twice is a
// no-op.
func (s *SQLiteDatabase) RecordPurchase(ctx context.Context, buyerID, artifactID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (buyer_id, artifact_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (buyer_id, artifact_id) DO NOTHING`,
		buyerID, artifactID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("recording purchase: %w", err)
	}
	return nil
}

// IncrementDownloadCount bumps the artifact's durable download counter.
func (s *SQLiteDatabase) IncrementDownloadCount(ctx context.Context, artifactID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE artifacts SET download_count = download_count + 1 WHERE id = ?`, artifactID)
	if err != nil {
		return fmt.Errorf("incrementing download count: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

func encodeDetails(a *mart.Artifact) (previewJSON, findingsJSON string, err error) {
	preview, err := json.Marshal(a.Preview)
	if err != nil {
		return "", "", fmt.Errorf("encoding preview: %w", err)
	}
	findings := a.Findings
	if findings == nil {
		findings = []string{}
	}
	fdata, err := json.Marshal(findings)
	if err != nil {
		return "", "", fmt.Errorf("encoding findings: %w", err)
	}
	return string(preview), string(fdata), nil
}

// scanArtifact reads one artifact row from a QueryRow result.
func scanArtifact(row *sql.Row) (*mart.Artifact, error) {
	var a mart.Artifact
	var previewJSON, findingsJSON, status string
	err := row.Scan(
		&a.ID, &a.SellerID, &a.Title, &a.Slug, &a.Description, &a.Category, &a.Version, &a.License,
		&a.StoragePath, &a.Fingerprint, &previewJSON, &status, &a.ScanStatus, &findingsJSON,
		&a.ReviewRequired, &a.DownloadCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = mart.Status(status)
	if err := json.Unmarshal([]byte(previewJSON), &a.Preview); err != nil {
		return nil, fmt.Errorf("decoding preview: %w", err)
	}
	if err := json.Unmarshal([]byte(findingsJSON), &a.Findings); err != nil {
		return nil, fmt.Errorf("decoding findings: %w", err)
	}
	if len(a.Findings) == 0 {
		a.Findings = nil
	}
	return &a, nil
}

// Compile-time check that SQLiteDatabase implements mart.Database
var _ mart.Database = (*SQLiteDatabase)(nil)
