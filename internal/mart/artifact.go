package mart

import "time"

// Status is the publication state of an artifact.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPublished     Status = "published"
	StatusPendingReview Status = "pending_review"
	StatusFlagged       Status = "flagged"
	StatusRejected      Status = "rejected"
	StatusDeleted       Status = "deleted"
)

// RequestableStatuses are the states a seller may ask for on upload.
// Everything else is assigned by the trust gate or by moderation.
var RequestableStatuses = []Status{StatusDraft, StatusPublished}

// Preview is the bounded subset of an archive captured at ingestion time.
// It is shown on the listing page and doubles as the delivery-time fallback
// when the stored blob is unavailable.
type Preview struct {
	SoulMD   string   `json:"soul_md,omitempty"`
	AgentsMD string   `json:"agents_md,omitempty"`
	FileList []string `json:"file_list,omitempty"`
}

// Empty reports whether nothing usable was captured.
func (p Preview) Empty() bool {
	return p.SoulMD == "" && p.AgentsMD == "" && len(p.FileList) == 0
}

// Artifact is an uploaded, sellable package plus its listing metadata.
// The fingerprint is recomputed on every upload of the same logical product:
// same bytes always produce the same fingerprint.
type Artifact struct {
	ID          string
	SellerID    string
	Title       string
	Slug        string
	Description string
	Category    string
	Version     string
	License     string

	StoragePath string
	Fingerprint string
	Preview     Preview

	Status         Status
	ScanStatus     string
	Findings       []string
	ReviewRequired bool

	DownloadCount int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
