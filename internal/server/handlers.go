package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"molt-mart/internal/mart"
)

// formOverhead is extra multipart headroom on top of the upload ceiling so
// metadata fields never trip the body limit.
const formOverhead = 1 << 20

type artifactResponse struct {
	ID             string       `json:"id"`
	SellerID       string       `json:"seller_id"`
	Title          string       `json:"title"`
	Slug           string       `json:"slug"`
	Description    string       `json:"description,omitempty"`
	Category       string       `json:"category,omitempty"`
	Version        string       `json:"version,omitempty"`
	License        string       `json:"license,omitempty"`
	Fingerprint    string       `json:"fingerprint"`
	Preview        mart.Preview `json:"preview"`
	Status         string       `json:"status"`
	ScanStatus     string       `json:"scan_status"`
	Findings       []string     `json:"findings,omitempty"`
	ReviewRequired bool         `json:"review_required"`
	DownloadCount  int64        `json:"download_count"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func toResponse(a *mart.Artifact) artifactResponse {
	return artifactResponse{
		ID:             a.ID,
		SellerID:       a.SellerID,
		Title:          a.Title,
		Slug:           a.Slug,
		Description:    a.Description,
		Category:       a.Category,
		Version:        a.Version,
		License:        a.License,
		Fingerprint:    a.Fingerprint,
		Preview:        a.Preview,
		Status:         string(a.Status),
		ScanStatus:     a.ScanStatus,
		Findings:       a.Findings,
		ReviewRequired: a.ReviewRequired,
		DownloadCount:  a.DownloadCount,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !id.Seller {
		writeError(w, http.StatusForbidden, "seller account required")
		return
	}

	upload, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	requested := mart.Status(r.FormValue("status"))
	if requested == "" {
		requested = mart.StatusPublished
	}
	if !requestable(requested) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("status %q cannot be requested", requested))
		return
	}

	artifact, err := s.svc.Ingest(r.Context(), mart.IngestRequest{
		SellerID:    id.UserID,
		Title:       r.FormValue("title"),
		Slug:        r.FormValue("slug"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Version:     r.FormValue("version"),
		License:     r.FormValue("license"),
		Requested:   requested,
		Upload:      upload,
	})
	if err != nil {
		if _, rejected := mart.IsPolicyViolation(err); rejected {
			s.metrics.IncRejected()
		}
		s.writeServiceError(w, err)
		return
	}

	s.metrics.IncIngested(artifact.ScanStatus)
	writeJSON(w, http.StatusCreated, toResponse(artifact))
}

func (s *Server) handleReplaceFile(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !id.Seller {
		writeError(w, http.StatusForbidden, "seller account required")
		return
	}

	upload, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	artifact, err := s.svc.Replace(r.Context(), id.UserID, r.PathValue("id"), upload)
	if err != nil {
		if _, rejected := mart.IsPolicyViolation(err); rejected {
			s.metrics.IncRejected()
		}
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(artifact))
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(artifact))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	download, err := s.svc.Deliver(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.metrics.IncDelivered(download.Source)
	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(download.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(download.Data)
}

// readUpload pulls the archive file out of the multipart form, enforcing the
// body size ceiling before any bytes are buffered.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (mart.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.svc.MaxUploadSize+formOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, mart.ErrSizeExceeded.Error())
		} else {
			writeError(w, http.StatusBadRequest, "multipart field \"file\" required")
		}
		return mart.Upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, mart.ErrSizeExceeded.Error())
		} else {
			writeError(w, http.StatusBadRequest, "reading upload failed")
		}
		return mart.Upload{}, false
	}

	return mart.Upload{Filename: header.Filename, Data: data}, true
}

func requestable(status mart.Status) bool {
	for _, s := range mart.RequestableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// writeServiceError maps service-layer errors onto the HTTP status space.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if findings, ok := mart.IsPolicyViolation(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:    "upload rejected by content scan",
			Findings: findings,
		})
		return
	}

	switch {
	case errors.Is(err, mart.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mart.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, mart.ErrSizeExceeded):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, mart.ErrUnsupportedType), errors.Is(err, mart.ErrInvalidSlug),
		errors.Is(err, mart.ErrInvalidCategory), errors.Is(err, mart.ErrInvalidLicense):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mart.ErrSlugTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, mart.ErrArtifactUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type errorResponse struct {
	Error    string   `json:"error"`
	Findings []string `json:"findings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
