package mart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"molt-mart/internal/archive"
	"molt-mart/internal/build"
	"molt-mart/internal/scan"
)

// DefaultMaxUploadSize bounds worst-case memory and processing time for a
// single synchronous ingestion.
const DefaultMaxUploadSize = 10 << 20 // 10 MiB

// ErrInvalidSlug means the requested slug is not lowercase letters, digits
// and hyphens.
var ErrInvalidSlug = errors.New("slug must be lowercase letters, digits and hyphens")

// ErrSlugTaken means the seller already has an artifact under this slug.
// Replacing an existing artifact's file goes through Replace instead.
var ErrSlugTaken = errors.New("slug already in use")

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Upload is one archive file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// IngestRequest carries the upload plus listing metadata for a new artifact.
type IngestRequest struct {
	SellerID    string
	Title       string
	Slug        string
	Description string
	Category    string
	Version     string
	License     string
	Requested   Status
	Upload      Upload
}

// Download is a rebuilt archive ready to stream to a buyer. Source records
// whether the content came from the stored archive or the preview fallback.
type Download struct {
	Filename    string
	ContentType string
	Source      string
	Data        []byte
}

// Service coordinates the ingestion and delivery pipeline: validation,
// scanning, blob persistence, trust gating and archive rebuilding. It holds
// no mutable state of its own; every call is a complete request cycle.
type Service struct {
	database Database
	blobs    BlobStore
	counter  Counter
	scanner  *scan.Scanner
	gate     *TrustGate
	enc      Encryptor
	dec      DecryptionContext
	logger   Logger
	clock    Clock
	idgen    IDGenerator

	// MaxUploadSize is the ingestion size ceiling in bytes.
	MaxUploadSize int64
	// SourceBase is the canonical listing URL prefix written into manifests.
	SourceBase string
	// Categories and Licenses restrict listing metadata when non-empty.
	Categories []string
	Licenses   []string
}

// NewService creates a fully wired Service. enc may be nil when blobs are
// stored in plaintext.
func NewService(database Database, blobs BlobStore, counter Counter, scanner *scan.Scanner, gate *TrustGate, enc Encryptor, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		database:      database,
		blobs:         blobs,
		counter:       counter,
		scanner:       scanner,
		gate:          gate,
		enc:           enc,
		logger:        logger,
		clock:         clock,
		idgen:         idgen,
		MaxUploadSize: DefaultMaxUploadSize,
		SourceBase:    "https://molt.mart",
	}
}

// Unlock prepares the service to decrypt stored blobs at delivery time.
// Required once at startup when at-rest encryption is configured.
func (s *Service) Unlock(passphrase string) error {
	if s.enc == nil || !s.enc.IsConfigured() {
		return nil
	}
	dec, err := s.enc.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking blob encryption key: %w", err)
	}
	s.dec = dec
	return nil
}

// Ingest runs the full upload pipeline. On a rejected scan nothing is
// persisted and the returned error carries the findings. A metadata write
// failure after the blob landed triggers best-effort blob cleanup; there is
// no transaction spanning both stores.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*Artifact, error) {
	if err := s.validateUpload(req.Upload); err != nil {
		return nil, err
	}
	if !slugPattern.MatchString(req.Slug) {
		return nil, ErrInvalidSlug
	}
	if !inVocabulary(req.Category, s.Categories) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, req.Category)
	}
	if !inVocabulary(req.License, s.Licenses) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLicense, req.License)
	}

	verdict := s.scanner.Scan(req.Upload.Data)
	if verdict.Status == scan.StatusRejected {
		s.logger.Warn("upload rejected by scan", "seller", req.SellerID, "slug", req.Slug, "findings", len(verdict.Findings))
		return nil, &PolicyViolationError{Findings: verdict.Findings}
	}

	existing, err := s.database.GetArtifactBySlug(ctx, req.SellerID, req.Slug)
	if err != nil {
		return nil, fmt.Errorf("checking slug: %w", err)
	}
	if existing != nil {
		return nil, ErrSlugTaken
	}

	// Verdict is clean or flagged from here on; the gate cannot reject.
	a, err := archive.Open(req.Upload.Data)
	if err != nil {
		// Scan already parsed these bytes; a failure here means the buffer
		// changed underneath us, which we treat as corrupt input.
		return nil, &PolicyViolationError{Findings: []string{"Invalid or corrupt archive"}}
	}
	preview := capturePreview(a)

	storagePath := fmt.Sprintf("templates/%s/%s.zip", req.SellerID, req.Slug)
	if err := s.putBlob(ctx, storagePath, req.Upload.Data); err != nil {
		return nil, fmt.Errorf("storing archive: %w", err)
	}

	prior, err := s.database.CountPublishedBySeller(ctx, req.SellerID)
	if err != nil {
		s.cleanupBlob(ctx, storagePath)
		return nil, fmt.Errorf("counting seller history: %w", err)
	}

	decision, err := s.gate.Decide(verdict, prior, req.Requested)
	if err != nil {
		s.cleanupBlob(ctx, storagePath)
		return nil, err
	}

	now := s.clock.Now()
	artifact := &Artifact{
		ID:             s.idgen.New(),
		SellerID:       req.SellerID,
		Title:          req.Title,
		Slug:           req.Slug,
		Description:    req.Description,
		Category:       req.Category,
		Version:        req.Version,
		License:        req.License,
		StoragePath:    storagePath,
		Fingerprint:    verdict.Fingerprint,
		Preview:        preview,
		Status:         decision.State,
		ScanStatus:     string(verdict.Status),
		Findings:       verdict.Findings,
		ReviewRequired: decision.RequiresReview,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.database.CreateArtifact(ctx, artifact); err != nil {
		s.cleanupBlob(ctx, storagePath)
		return nil, fmt.Errorf("recording artifact: %w", err)
	}

	s.logger.Info("artifact ingested",
		"artifact", artifact.ID,
		"seller", req.SellerID,
		"state", string(artifact.Status),
		"scan", artifact.ScanStatus,
		"review", artifact.ReviewRequired)
	return artifact, nil
}

// Replace runs the same validate-and-scan pipeline against an existing
// artifact owned by the caller, then overwrites the stored blob, preview
// and fingerprint. The trust gate's new-seller probation applies only to
// initial uploads and is not re-run here.
func (s *Service) Replace(ctx context.Context, sellerID, artifactID string, upload Upload) (*Artifact, error) {
	artifact, err := s.database.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.SellerID != sellerID {
		return nil, ErrForbidden
	}

	if err := s.validateUpload(upload); err != nil {
		return nil, err
	}

	verdict := s.scanner.Scan(upload.Data)
	if verdict.Status == scan.StatusRejected {
		// The previously stored blob stays untouched.
		s.logger.Warn("replacement rejected by scan", "artifact", artifactID, "findings", len(verdict.Findings))
		return nil, &PolicyViolationError{Findings: verdict.Findings}
	}

	a, err := archive.Open(upload.Data)
	if err != nil {
		return nil, &PolicyViolationError{Findings: []string{"Invalid or corrupt archive"}}
	}

	if err := s.putBlob(ctx, artifact.StoragePath, upload.Data); err != nil {
		return nil, fmt.Errorf("storing replacement archive: %w", err)
	}

	artifact.Fingerprint = verdict.Fingerprint
	artifact.Preview = capturePreview(a)
	artifact.ScanStatus = string(verdict.Status)
	artifact.Findings = verdict.Findings
	artifact.UpdatedAt = s.clock.Now()

	if err := s.database.UpdateArtifactUpload(ctx, artifact); err != nil {
		return nil, fmt.Errorf("recording replacement: %w", err)
	}

	s.logger.Info("artifact file replaced", "artifact", artifactID, "scan", artifact.ScanStatus)
	return artifact, nil
}

// Deliver rebuilds the distributable archive for a buyer. A missing blob
// falls back to the preview fragments captured at ingestion; only when
// neither exists does delivery fail with ErrArtifactUnavailable.
func (s *Service) Deliver(ctx context.Context, buyerID, artifactID string) (*Download, error) {
	artifact, err := s.database.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.Status != StatusPublished {
		return nil, ErrNotFound
	}

	original, err := s.fetchBlob(ctx, artifact.StoragePath)
	if err != nil && !errors.Is(err, ErrBlobNotFound) {
		return nil, fmt.Errorf("fetching archive: %w", err)
	}
	if original == nil {
		s.logger.Warn("stored archive missing, rebuilding from preview", "artifact", artifactID)
	}

	info := build.Info{
		Name:        artifact.Title,
		Slug:        artifact.Slug,
		Version:     artifact.Version,
		Author:      artifact.SellerID,
		Description: artifact.Description,
		Category:    artifact.Category,
		Source:      s.SourceBase + "/templates/" + artifact.Slug,
	}
	fallback := build.Fallback{FileList: artifact.Preview.FileList}
	if artifact.Preview.SoulMD != "" || artifact.Preview.AgentsMD != "" {
		fallback.Documents = map[string]string{}
		if artifact.Preview.SoulMD != "" {
			fallback.Documents["SOUL.md"] = artifact.Preview.SoulMD
		}
		if artifact.Preview.AgentsMD != "" {
			fallback.Documents["AGENTS.md"] = artifact.Preview.AgentsMD
		}
	}

	data, err := build.Rebuild(original, fallback, info)
	if err != nil {
		if errors.Is(err, build.ErrNoContent) {
			return nil, ErrArtifactUnavailable
		}
		return nil, fmt.Errorf("rebuilding archive: %w", err)
	}

	if err := s.database.RecordPurchase(ctx, buyerID, artifactID); err != nil {
		return nil, fmt.Errorf("recording purchase: %w", err)
	}
	if err := s.database.IncrementDownloadCount(ctx, artifactID); err != nil {
		return nil, fmt.Errorf("counting download: %w", err)
	}
	if s.counter != nil {
		// Advisory rolling tally; failure must not block the download.
		if _, err := s.counter.IncrDownloads(ctx, artifactID); err != nil {
			s.logger.Warn("download tally failed", "artifact", artifactID, "error", err)
		}
	}

	source := "archive"
	if original == nil {
		source = "preview"
	}
	s.logger.Info("artifact delivered", "artifact", artifactID, "buyer", buyerID, "source", source)
	return &Download{
		Filename:    artifact.Slug + ".zip",
		ContentType: "application/zip",
		Source:      source,
		Data:        data,
	}, nil
}

// Get returns an artifact record by id.
func (s *Service) Get(ctx context.Context, artifactID string) (*Artifact, error) {
	return s.database.GetArtifact(ctx, artifactID)
}

// inVocabulary reports whether v is allowed by the list. An empty list means
// the field is unrestricted; an empty value is always allowed since both
// fields are optional listing metadata.
func inVocabulary(v string, allowed []string) bool {
	if v == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

func (s *Service) validateUpload(u Upload) error {
	if !strings.HasSuffix(strings.ToLower(u.Filename), ".zip") {
		return ErrUnsupportedType
	}
	if int64(len(u.Data)) > s.MaxUploadSize {
		return ErrSizeExceeded
	}
	if len(u.Data) == 0 {
		return ErrUnsupportedType
	}
	return nil
}

// putBlob stores archive bytes, encrypting first when an encryptor is
// configured.
func (s *Service) putBlob(ctx context.Context, path string, data []byte) error {
	if s.enc != nil && s.enc.IsConfigured() {
		var sealed bytes.Buffer
		if err := s.enc.Encrypt(bytes.NewReader(data), &sealed); err != nil {
			return fmt.Errorf("encrypting archive: %w", err)
		}
		return s.blobs.Put(ctx, path, &sealed, int64(sealed.Len()))
	}
	return s.blobs.Put(ctx, path, bytes.NewReader(data), int64(len(data)))
}

// fetchBlob returns nil bytes (not an error) when the blob is missing.
func (s *Service) fetchBlob(ctx context.Context, path string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.blobs.Get(ctx, path, &buf); err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if s.enc != nil && s.enc.IsConfigured() {
		if s.dec == nil {
			return nil, fmt.Errorf("blob encryption configured but key not unlocked")
		}
		var plain bytes.Buffer
		if err := s.dec.Decrypt(bytes.NewReader(buf.Bytes()), &plain); err != nil {
			return nil, fmt.Errorf("decrypting archive: %w", err)
		}
		return plain.Bytes(), nil
	}
	return buf.Bytes(), nil
}

// cleanupBlob is best-effort: a failure leaves an orphaned blob, which is
// harmless, and is logged rather than surfaced.
func (s *Service) cleanupBlob(ctx context.Context, path string) {
	if err := s.blobs.Delete(ctx, path); err != nil {
		s.logger.Error("orphaned blob cleanup failed", "path", path, "error", err)
	}
}
