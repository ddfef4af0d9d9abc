package mart

import (
	"context"
	"time"
)

// Counter is the shared counting collaborator: per-IP rate limiting and
// rolling download tallies. It is injected rather than kept as module-level
// state so nothing in this package owns hidden cross-request mutable data.
type Counter interface {
	// Allow records one request from key within the window and reports
	// whether the caller is still under limit. The window is fixed-size,
	// keyed on the truncated wall clock.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// IncrDownloads bumps the rolling download tally for an artifact and
	// returns the new value. This is advisory (trending/analytics); the
	// durable count lives in the Database.
	IncrDownloads(ctx context.Context, artifactID string) (int64, error)

	// Close releases any underlying connection.
	Close() error
}
