package mart

import "context"

// Database is the metadata store for artifact records and purchases.
// Implementations must not invent publication states: they persist exactly
// what the service layer decided.
type Database interface {
	// CreateArtifact inserts a new artifact record.
	CreateArtifact(ctx context.Context, a *Artifact) error

	// GetArtifact returns the artifact with the given id, or ErrNotFound.
	GetArtifact(ctx context.Context, id string) (*Artifact, error)

	// GetArtifactBySlug returns the seller's artifact with the given slug,
	// or nil when no such artifact exists.
	GetArtifactBySlug(ctx context.Context, sellerID, slug string) (*Artifact, error)

	// UpdateArtifactUpload overwrites the upload-derived fields of an
	// existing artifact after a replace-file operation: fingerprint,
	// preview, scan outcome and updated-at. Publication state is not
	// touched; replace never re-runs new-seller probation.
	UpdateArtifactUpload(ctx context.Context, a *Artifact) error

	// CountPublishedBySeller returns how many published artifacts the
	// seller already has. The trust gate uses this for probation.
	CountPublishedBySeller(ctx context.Context, sellerID string) (int, error)

	// RecordPurchase upserts a purchase row for (buyer, artifact).
	// Recording the same pair twice is a no-op.
	RecordPurchase(ctx context.Context, buyerID, artifactID string) error

	// IncrementDownloadCount bumps the artifact's download counter.
	IncrementDownloadCount(ctx context.Context, artifactID string) error

	// Close closes the underlying connection.
	Close() error
}
