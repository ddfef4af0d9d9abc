package mart

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for input validation and delivery failures. The HTTP layer
// maps these to status codes with errors.Is; nothing below this package
// should leak raw parser or storage errors to a client.
var (
	// ErrSizeExceeded means the upload is larger than the configured ceiling.
	// Rejected before any scan work begins.
	ErrSizeExceeded = errors.New("upload exceeds maximum size")

	// ErrUnsupportedType means the upload is not a zip archive.
	ErrUnsupportedType = errors.New("only .zip uploads are supported")

	// ErrArtifactUnavailable means neither the stored blob nor the preview
	// fragments exist, so no download can be prepared.
	ErrArtifactUnavailable = errors.New("artifact content unavailable")

	// ErrNotFound means no artifact exists for the given identifier.
	ErrNotFound = errors.New("artifact not found")

	// ErrForbidden means the caller does not own the artifact.
	ErrForbidden = errors.New("caller does not own this artifact")

	// ErrInvalidCategory means the category is not in the configured
	// vocabulary.
	ErrInvalidCategory = errors.New("unknown category")

	// ErrInvalidLicense means the license is not in the configured
	// vocabulary.
	ErrInvalidLicense = errors.New("unknown license")
)

// PolicyViolationError is returned when the content scan rejects an upload.
// It carries the specific findings so the seller can self-correct; a scan
// rejection must never surface as a generic failure.
type PolicyViolationError struct {
	Findings []string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("upload rejected by content scan: %s", strings.Join(e.Findings, "; "))
}

// IsPolicyViolation reports whether err is a scan rejection and returns the
// findings when it is.
func IsPolicyViolation(err error) ([]string, bool) {
	var pv *PolicyViolationError
	if errors.As(err, &pv) {
		return pv.Findings, true
	}
	return nil, false
}
