package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/faultmaven/evidence-service/internal/middleware"
	"github.com/faultmaven/evidence-service/internal/response"
	"github.com/faultmaven/evidence-service/internal/storage"
)

// multipartOverhead is the slack added to the body limit on top of the file
// size ceiling to account for multipart boundaries and form fields.
const multipartOverhead = 1 << 20

// Handler holds HTTP handlers for evidence endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new evidence Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	EvidenceID string    `json:"evidence_id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	Type       Type      `json:"evidence_type"`
	UploadedAt time.Time `json:"uploaded_at"`
	Message    string    `json:"message"`
}

// ListItem is the trimmed record shape used in list responses.
type ListItem struct {
	EvidenceID string    `json:"evidence_id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	Type       Type      `json:"evidence_type"`
	CaseID     *string   `json:"case_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ListResponse is one page of evidence plus pagination totals.
type ListResponse struct {
	Evidence   []ListItem `json:"evidence"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

// RelinkRequest is the body for linking evidence to a case.
type RelinkRequest struct {
	CaseID string `json:"case_id"`
}

// HealthResponse reports backend reachability.
type HealthResponse struct {
	Status            string    `json:"status"`
	Service           string    `json:"service"`
	Timestamp         time.Time `json:"timestamp"`
	StorageAvailable  bool      `json:"storage_available"`
	DatabaseAvailable bool      `json:"database_available"`
}

// Upload godoc
//
//	@Summary		Upload evidence file
//	@Description	Uploads an evidence file, classifies it, stores the bytes in the configured backend, and records metadata.
//	@Tags			evidence
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Evidence file"
//	@Param			case_id		formData	string	true	"Case to link the evidence to"
//	@Param			description	formData	string	false	"Optional description"
//	@Param			X-User-ID	header		string	true	"Caller identity from the gateway"
//	@Success		201	{object}	response.Envelope{data=UploadResponse}
//	@Failure		400	{object}	response.Envelope
//	@Failure		413	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/evidence [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CallerID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.svc.MaxUploadBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		response.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	caseID := r.FormValue("case_id")
	if caseID == "" {
		response.BadRequest(w, "case_id is required")
		return
	}

	e, err := h.svc.Upload(r.Context(), UploadInput{
		Reader:      file,
		Filename:    header.Filename,
		Size:        header.Size,
		CaseID:      caseID,
		Description: r.FormValue("description"),
		UploadedBy:  userID,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			response.BadRequest(w, err.Error())
			return
		}
		log.Printf("evidence: upload failed: %v", err)
		response.InternalError(w)
		return
	}

	response.Created(w, UploadResponse{
		EvidenceID: e.ID,
		Filename:   e.Filename,
		FileType:   e.FileType,
		FileSize:   e.FileSize,
		Type:       e.Type,
		UploadedAt: e.UploadedAt,
		Message:    "evidence uploaded successfully",
	})
}

// Get godoc
//
//	@Summary		Get evidence metadata
//	@Description	Returns the full metadata record without touching file bytes.
//	@Tags			evidence
//	@Produce		json
//	@Param			evidenceID	path		string	true	"Evidence ID"
//	@Success		200	{object}	response.Envelope{data=Evidence}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/evidence/{evidenceID} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "evidenceID")

	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "evidence not found")
			return
		}
		log.Printf("evidence: get %s failed: %v", id, err)
		response.InternalError(w)
		return
	}

	response.OK(w, e)
}

// Download godoc
//
//	@Summary		Download evidence file
//	@Description	Streams the stored bytes with the original filename as disposition hint.
//	@Tags			evidence
//	@Produce		octet-stream
//	@Param			evidenceID	path	string	true	"Evidence ID"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/evidence/{evidenceID}/download [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "evidenceID")

	rc, e, err := h.svc.Download(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "evidence not found")
			return
		}
		log.Printf("evidence: download %s failed: %v", id, err)
		response.InternalError(w)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(e.FileSize, 10))

	if _, err := io.CopyBuffer(w, rc, make([]byte, storage.ChunkSize)); err != nil {
		// Headers are gone; nothing to do but log the broken stream.
		log.Printf("evidence: streaming %s aborted: %v", id, err)
	}
}

// Delete godoc
//
//	@Summary		Delete evidence
//	@Description	Removes the stored bytes and the metadata record. Permanent.
//	@Tags			evidence
//	@Param			evidenceID	path	string	true	"Evidence ID"
//	@Success		204
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/evidence/{evidenceID} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "evidenceID")

	deleted, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		log.Printf("evidence: delete %s failed: %v", id, err)
		response.InternalError(w)
		return
	}
	if !deleted {
		response.NotFound(w, "evidence not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List godoc
//
//	@Summary		List evidence for a case
//	@Description	Paginated listing filtered by case and optional evidence type, newest first.
//	@Tags			evidence
//	@Produce		json
//	@Param			case_id			query		string	true	"Case ID"
//	@Param			page			query		int		false	"Page number (1-indexed)"
//	@Param			page_size		query		int		false	"Items per page"
//	@Param			evidence_type	query		string	false	"Filter by type (log, screenshot, document, metric, other)"
//	@Success		200	{object}	response.Envelope{data=ListResponse}
//	@Failure		400	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/evidence [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		response.BadRequest(w, "case_id is required")
		return
	}

	var typ Type
	if t := r.URL.Query().Get("evidence_type"); t != "" {
		typ = Type(t)
		if !typ.Valid() {
			response.BadRequest(w, fmt.Sprintf("unknown evidence_type %q", t))
			return
		}
	}

	h.listPage(w, r, Filter{
		CaseID:   caseID,
		Type:     typ,
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 0),
	})
}

// ListByCase godoc
//
//	@Summary		List evidence for a case (path variant)
//	@Description	Same listing as GET /evidence with the case in the URL path and no type filter.
//	@Tags			evidence
//	@Produce		json
//	@Param			caseID		path		string	true	"Case ID"
//	@Param			page		query		int		false	"Page number (1-indexed)"
//	@Param			page_size	query		int		false	"Items per page"
//	@Success		200	{object}	response.Envelope{data=ListResponse}
//	@Failure		500	{object}	response.Envelope
//	@Router			/evidence/case/{caseID} [get]
func (h *Handler) ListByCase(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, Filter{
		CaseID:   chi.URLParam(r, "caseID"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 0),
	})
}

func (h *Handler) listPage(w http.ResponseWriter, r *http.Request, f Filter) {
	list, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		log.Printf("evidence: list case %s failed: %v", f.CaseID, err)
		response.InternalError(w)
		return
	}

	// Echo the clamped values the service actually used.
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = h.svc.defaultPageSize
	}
	if f.PageSize > h.svc.maxPageSize {
		f.PageSize = h.svc.maxPageSize
	}

	items := make([]ListItem, 0, len(list))
	for _, e := range list {
		items = append(items, ListItem{
			EvidenceID: e.ID,
			Filename:   e.Filename,
			FileType:   e.FileType,
			FileSize:   e.FileSize,
			Type:       e.Type,
			CaseID:     e.CaseID,
			UploadedAt: e.UploadedAt,
		})
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + f.PageSize - 1) / f.PageSize
	}

	response.OK(w, ListResponse{
		Evidence:   items,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: totalPages,
	})
}

// Relink godoc
//
//	@Summary		Link evidence to a case
//	@Description	Changes only the case association; the storage key and bytes stay where they are.
//	@Tags			evidence
//	@Accept			json
//	@Produce		json
//	@Param			evidenceID	path		string			true	"Evidence ID"
//	@Param			request		body		RelinkRequest	true	"Target case"
//	@Success		200	{object}	response.Envelope
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/evidence/{evidenceID}/link [post]
func (h *Handler) Relink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "evidenceID")

	var req RelinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" {
		response.BadRequest(w, "case_id is required")
		return
	}

	linked, err := h.svc.Relink(r.Context(), id, req.CaseID)
	if err != nil {
		log.Printf("evidence: relink %s failed: %v", id, err)
		response.InternalError(w)
		return
	}
	if !linked {
		response.NotFound(w, "evidence not found")
		return
	}

	response.OK(w, map[string]string{
		"message":     "evidence linked to case",
		"evidence_id": id,
		"case_id":     req.CaseID,
	})
}

// Health godoc
//
//	@Summary		Evidence service health
//	@Description	Reports storage backend and database reachability as independent booleans.
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/evidence/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	storageOK, dbOK := h.svc.Health(r.Context())

	status := "healthy"
	if !storageOK || !dbOK {
		status = "degraded"
	}

	response.JSON(w, http.StatusOK, HealthResponse{
		Status:            status,
		Service:           "evidence-service",
		Timestamp:         time.Now().UTC(),
		StorageAvailable:  storageOK,
		DatabaseAvailable: dbOK,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
