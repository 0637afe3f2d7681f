package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faultmaven/evidence-service/internal/config"
	"github.com/faultmaven/evidence-service/internal/storage"
)

// ErrValidation is returned when an upload fails the extension allow-list or
// size ceiling. Always raised before any I/O happens.
var ErrValidation = errors.New("validation failed")

// Store is the metadata persistence surface the service needs. *Repository
// implements it; tests substitute an in-memory fake.
type Store interface {
	Create(ctx context.Context, e *Evidence) error
	GetByID(ctx context.Context, id string) (*Evidence, error)
	Delete(ctx context.Context, id string) (bool, error)
	UpdateCase(ctx context.Context, id, caseID string) (bool, error)
	List(ctx context.Context, f Filter) ([]*Evidence, int, error)
	Ping(ctx context.Context) error
}

// Service orchestrates the evidence lifecycle across the metadata store and
// the storage provider: it owns the ordering between the two (bytes are
// written before metadata commits; on delete, metadata removal wins over
// storage failures) so callers see a consistent record or none at all.
type Service struct {
	store   Store
	storage storage.Provider

	maxBytes        int64
	allowedExts     map[string]bool
	defaultPageSize int
	maxPageSize     int
}

// NewService creates the evidence Service with the injected metadata store
// and storage provider.
func NewService(store Store, provider storage.Provider, cfg *config.Config) *Service {
	allowed := make(map[string]bool)
	for _, ext := range cfg.AllowedExtensions() {
		allowed[ext] = true
	}
	return &Service{
		store:           store,
		storage:         provider,
		maxBytes:        cfg.MaxFileSizeBytes(),
		allowedExts:     allowed,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
}

// UploadInput carries everything needed to ingest one evidence file.
type UploadInput struct {
	Reader      io.Reader
	Filename    string
	Size        int64
	CaseID      string
	Description string
	UploadedBy  string
}

// Upload validates, classifies, stores, and records a new evidence file.
// Validation happens before any I/O; the metadata row is committed only
// after the storage write succeeded, so a failed write leaves no record.
// If the metadata commit fails after a successful write, the stored object
// is orphaned; that gap is logged here, not repaired.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Evidence, error) {
	if err := s.validate(in.Filename, in.Size); err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, storage.ErrNotInitialized
	}

	id := uuid.NewString()
	fileType := detectMIME(in.Filename)
	key := storage.BuildKey(in.UploadedBy, in.CaseID, id, in.Filename)

	if _, err := s.storage.Upload(ctx, key, in.Reader, in.Size, fileType); err != nil {
		return nil, fmt.Errorf("store evidence bytes: %w", err)
	}

	e := &Evidence{
		ID:         id,
		Filename:   in.Filename,
		FileType:   fileType,
		FileSize:   in.Size,
		StorageKey: key,
		Type:       Classify(in.Filename, fileType),
		Metadata:   map[string]any{},
		UploadedAt: time.Now().UTC(),
		UploadedBy: in.UploadedBy,
	}
	if in.CaseID != "" {
		e.CaseID = &in.CaseID
	}
	if in.Description != "" {
		e.Description = &in.Description
	}

	if err := s.store.Create(ctx, e); err != nil {
		// The stored object is now orphaned. No automatic cleanup; a
		// reconciliation sweep would find it under its storage key.
		log.Printf("evidence: metadata commit failed, orphaned object at %q: %v", key, err)
		return nil, err
	}

	log.Printf("evidence: uploaded %s (%s, %d bytes, %s)", id, in.Filename, in.Size, e.Type)
	return e, nil
}

// Get returns the metadata record for id.
func (s *Service) Get(ctx context.Context, id string) (*Evidence, error) {
	return s.store.GetByID(ctx, id)
}

// Download looks up the record and opens a byte stream from the active
// storage backend. A provider-side miss (metadata exists but bytes do not)
// is translated to ErrNotFound.
func (s *Service) Download(ctx context.Context, id string) (io.ReadCloser, *Evidence, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.storage == nil {
		return nil, nil, storage.ErrNotInitialized
	}
	rc, err := s.storage.DownloadStream(ctx, e.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("evidence: %s has metadata but no stored bytes at %q", id, e.StorageKey)
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, e, nil
}

// Delete removes the stored bytes and then the metadata row. A storage-side
// "already absent" is tolerated, and a storage backend failure is logged but
// does not block metadata removal: the record is gone either way, at the
// cost of a possible orphaned object.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	e, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if s.storage == nil {
		return false, storage.ErrNotInitialized
	}
	if removed, err := s.storage.Delete(ctx, e.StorageKey); err != nil {
		log.Printf("evidence: storage delete failed for %q, removing metadata anyway: %v", e.StorageKey, err)
	} else if !removed {
		log.Printf("evidence: no stored bytes at %q during delete of %s", e.StorageKey, id)
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	log.Printf("evidence: deleted %s", id)
	return deleted, nil
}

// List returns one page of a case's evidence plus the total matching count.
// Page and page size are clamped to configured bounds.
func (s *Service) List(ctx context.Context, f Filter) ([]*Evidence, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = s.defaultPageSize
	}
	if f.PageSize > s.maxPageSize {
		f.PageSize = s.maxPageSize
	}
	return s.store.List(ctx, f)
}

// Relink changes only the case association of an evidence record. The
// storage key and the stored bytes are never touched.
func (s *Service) Relink(ctx context.Context, id, caseID string) (bool, error) {
	linked, err := s.store.UpdateCase(ctx, id, caseID)
	if err != nil {
		return false, err
	}
	if linked {
		log.Printf("evidence: linked %s to case %s", id, caseID)
	}
	return linked, nil
}

// Health reports storage and metadata-store reachability as independent
// booleans. Never returns an error.
func (s *Service) Health(ctx context.Context) (storageOK, databaseOK bool) {
	if s.storage != nil {
		storageOK = s.storage.HealthCheck(ctx)
	}
	databaseOK = s.store.Ping(ctx) == nil
	return storageOK, databaseOK
}

// MaxUploadBytes exposes the configured size ceiling for request limiting.
func (s *Service) MaxUploadBytes() int64 { return s.maxBytes }

// validate enforces the extension allow-list and the size ceiling.
func (s *Service) validate(filename string, size int64) error {
	if filename == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if size > s.maxBytes {
		return fmt.Errorf("%w: file too large: %d bytes (max %d)", ErrValidation, size, s.maxBytes)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowedExts[ext] {
		return fmt.Errorf("%w: file type not allowed: %q", ErrValidation, ext)
	}
	return nil
}

// detectMIME guesses the MIME type from the filename extension, stripping
// parameters such as charset. Unknown extensions fall back to octet-stream.
func detectMIME(filename string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if t == "" {
		return "application/octet-stream"
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

// Classify derives the evidence type from filename extension and MIME type.
// Rules are checked in order; the first match wins:
// text/log extensions or a text MIME -> log, image extensions or MIME ->
// screenshot, document extensions or pdf MIME -> document, .json or json
// MIME -> metric, everything else -> other.
func Classify(filename, fileType string) Type {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".log" || ext == ".txt" || strings.Contains(fileType, "text"):
		return TypeLog
	case ext == ".png" || ext == ".jpg" || ext == ".jpeg" || ext == ".gif" ||
		strings.Contains(fileType, "image"):
		return TypeScreenshot
	case ext == ".pdf" || ext == ".doc" || ext == ".docx" ||
		strings.Contains(fileType, "pdf"):
		return TypeDocument
	case ext == ".json" || strings.Contains(fileType, "json"):
		return TypeMetric
	default:
		return TypeOther
	}
}
