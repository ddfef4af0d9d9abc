// Package app is the application layer between the CLI and the marketplace
// service. It constructs all dependencies from config and manages their
// lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"molt-mart/internal/blob"
	"molt-mart/internal/config"
	"molt-mart/internal/counter"
	"molt-mart/internal/database"
	"molt-mart/internal/database/migrations"
	"molt-mart/internal/encryption"
	"molt-mart/internal/mart"
	"molt-mart/internal/metrics"
	"molt-mart/internal/scan"
	"molt-mart/internal/server"
)

// PassphraseEnv names the environment variable holding the blob decryption
// passphrase for server startup, where no terminal prompt is available.
const PassphraseEnv = "MOLTMART_PASSPHRASE"

// MartApp wires the blob store, database, counter, scanner and trust gate
// into a ready-to-serve marketplace. The caller must call Close when done.
type MartApp struct {
	cfg       *config.Config
	db        mart.Database
	blobs     mart.BlobStore
	counter   mart.Counter
	encryptor mart.Encryptor
	scanner   *scan.Scanner
	service   *mart.Service
	logger    mart.Logger
	logFile   *os.File
}

// NewMartApp creates a fully wired MartApp from the given config.
// operation identifies the CLI command being run (e.g. "Serve", "Scan").
func NewMartApp(ctx context.Context, cfg *config.Config, operation string) (*MartApp, error) {
	blobs, err := blob.NewStoreFromConfig(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if err := blobs.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("validating blob store: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, mart.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	cnt, err := counter.NewCounterFromConfig(cfg.Counter, mart.RealClock{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating counter: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		cnt.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	logger, logFile, err := newLogger(cfg.LogDir, operation)
	if err != nil {
		db.Close()
		cnt.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	scanner := scan.NewScanner(scan.DefaultRules, scan.Policy{RejectAt: cfg.Policy.RejectAtFindings})
	gate := mart.NewTrustGate(cfg.Policy.ProbationUploads)

	adapted := &slogAdapter{l: logger}
	svc := mart.NewService(db, blobs, cnt, scanner, gate, enc, adapted, mart.RealClock{}, mart.UUIDGenerator{})
	if cfg.Policy.MaxUploadBytes > 0 {
		svc.MaxUploadSize = cfg.Policy.MaxUploadBytes
	}
	if cfg.Server.SourceBase != "" {
		svc.SourceBase = cfg.Server.SourceBase
	}
	svc.Categories = cfg.Policy.Categories
	svc.Licenses = cfg.Policy.Licenses

	a := &MartApp{
		cfg:       cfg,
		db:        db,
		blobs:     blobs,
		counter:   cnt,
		encryptor: enc,
		scanner:   scanner,
		service:   svc,
		logger:    adapted,
		logFile:   logFile,
	}

	if enc != nil && enc.IsConfigured() {
		passphrase := os.Getenv(PassphraseEnv)
		if passphrase == "" {
			a.Close()
			return nil, fmt.Errorf("blob encryption is configured but %s is not set", PassphraseEnv)
		}
		if err := svc.Unlock(passphrase); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *MartApp) Serve(ctx context.Context) error {
	auth := server.NewStaticAuthenticator(a.cfg.Server.APIKeys)
	srv := server.New(a.service, auth, a.counter, metrics.NewProm("moltmart"), a.logger)
	srv.RateLimitPerMin = a.cfg.Policy.RateLimitPerMin
	return srv.Run(ctx, a.cfg.Server.Addr, a.cfg.Server.MetricsAddr)
}

// ScanFile runs the integrity scanner against a local archive and returns
// the verdict without touching any store.
func (a *MartApp) ScanFile(path string) (scan.Verdict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scan.Verdict{}, fmt.Errorf("reading archive: %w", err)
	}
	return a.scanner.Scan(data), nil
}

// SetupKeys generates and stores the at-rest encryption key pair.
func (a *MartApp) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is not enabled in config")
	}
	return a.encryptor.Setup(passphrase)
}

// Close releases the database, counter and log file.
func (a *MartApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if err := a.counter.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing counter: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// Migrate applies pending schema migrations to the configured database.
// It operates on a raw connection so it can bring an out-of-date database
// up without going through the version check in the factory.
func Migrate(cfg *config.Config) error {
	if cfg.Database.Type != "sqlite" {
		return fmt.Errorf("migrate only applies to sqlite databases")
	}
	if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(cfg.Database.DataDir, database.DatabaseFileName)
	db, err := database.OpenConnection(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrations.MigrateUp(db)
}
