// Package evidence manages evidence file records and their lifecycle:
// upload, metadata lookup, download, case relinking, and deletion.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Type classifies an evidence file into one of five categories.
type Type string

const (
	TypeLog        Type = "log"
	TypeScreenshot Type = "screenshot"
	TypeDocument   Type = "document"
	TypeMetric     Type = "metric"
	TypeOther      Type = "other"
)

// Valid reports whether t is one of the known classifications.
func (t Type) Valid() bool {
	switch t {
	case TypeLog, TypeScreenshot, TypeDocument, TypeMetric, TypeOther:
		return true
	}
	return false
}

// Evidence is the durable record for one uploaded file. ID, UploadedBy, and
// StorageKey are immutable after creation; CaseID is the only mutable field
// (via relink). StorageKey alone determines where the bytes live.
type Evidence struct {
	ID          string         `json:"evidence_id"`
	CaseID      *string        `json:"case_id"`
	Filename    string         `json:"filename"`
	FileType    string         `json:"file_type"`
	FileSize    int64          `json:"file_size"`
	StorageKey  string         `json:"-"`
	Type        Type           `json:"evidence_type"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	UploadedAt  time.Time      `json:"uploaded_at"`
	UploadedBy  string         `json:"uploaded_by"`
}

// ErrNotFound is returned when an evidence record does not exist.
var ErrNotFound = errors.New("evidence not found")

// Filter selects evidence records for listing.
type Filter struct {
	CaseID   string
	Type     Type // optional; empty means all types
	Page     int  // 1-indexed
	PageSize int
}

// Repository handles all evidence database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const evidenceColumns = `id, case_id, filename, file_type, file_size, storage_key,
	 evidence_type, description, metadata, uploaded_at, uploaded_by`

// Create inserts a new evidence record.
func (r *Repository) Create(ctx context.Context, e *Evidence) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO evidence
		 (id, case_id, filename, file_type, file_size, storage_key,
		  evidence_type, description, metadata, uploaded_at, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.CaseID, e.Filename, e.FileType, e.FileSize, e.StorageKey,
		string(e.Type), e.Description, e.Metadata, e.UploadedAt, e.UploadedBy,
	)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

// GetByID fetches an evidence record by its identifier.
func (r *Repository) GetByID(ctx context.Context, id string) (*Evidence, error) {
	e := &Evidence{}
	var typ string
	err := r.db.QueryRow(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE id = $1`, id,
	).Scan(&e.ID, &e.CaseID, &e.Filename, &e.FileType, &e.FileSize, &e.StorageKey,
		&typ, &e.Description, &e.Metadata, &e.UploadedAt, &e.UploadedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evidence by id: %w", err)
	}
	e.Type = Type(typ)
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return e, nil
}

// Delete removes an evidence record. Returns false when no row matched.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM evidence WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete evidence: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateCase changes the case association of an evidence record. Only the
// case_id column is touched. Returns false when no row matched.
func (r *Repository) UpdateCase(ctx context.Context, id, caseID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE evidence SET case_id = $2 WHERE id = $1`, id, caseID)
	if err != nil {
		return false, fmt.Errorf("update evidence case: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns one page of evidence records matching f, newest first, plus
// the total count computed from the same predicate.
func (r *Repository) List(ctx context.Context, f Filter) ([]*Evidence, int, error) {
	where := []string{"case_id = $1"}
	args := []any{f.CaseID}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("evidence_type = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM evidence WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count evidence: %w", err)
	}

	offset := (f.Page - 1) * f.PageSize
	args = append(args, f.PageSize, offset)
	rows, err := r.db.Query(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE `+cond+
			fmt.Sprintf(` ORDER BY uploaded_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var list []*Evidence
	for rows.Next() {
		e := &Evidence{}
		var typ string
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Filename, &e.FileType, &e.FileSize,
			&e.StorageKey, &typ, &e.Description, &e.Metadata, &e.UploadedAt, &e.UploadedBy); err != nil {
			return nil, 0, fmt.Errorf("scan evidence row: %w", err)
		}
		e.Type = Type(typ)
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list evidence: %w", err)
	}
	return list, total, nil
}

// Ping verifies database connectivity for health reporting.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
