// Package storage provides the pluggable backend for evidence file bytes.
// Exactly one Provider is constructed at startup (local filesystem or any
// S3-compatible object store) and injected into the evidence service —
// callers never branch on which backend is active.
package storage

import (
	"context"
	"io"
)

// ChunkSize is the buffer size used for streaming reads and writes. Both
// providers and the download handler use the same size so behavior is
// identical regardless of backend.
const ChunkSize = 64 * 1024

// Provider is the contract every storage backend implements. All methods are
// safe for concurrent use; each call acquires and releases its own file
// handle or connection.
type Provider interface {
	// Upload streams r to the backend under key and returns the key
	// unchanged. size must be the exact byte count. The write is
	// all-or-nothing: a failed upload leaves nothing retrievable at key.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// DownloadStream opens the object at key for sequential reading.
	// Returns ErrNotFound before any byte is yielded if the object is
	// absent. Caller must close the returned ReadCloser.
	DownloadStream(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Returns false (not an error) when
	// the object is already absent; deletion is idempotent.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether an object is stored at key. Metadata-only
	// probe, no data transfer.
	Exists(ctx context.Context, key string) (bool, error)

	// HealthCheck reports whether the backend is reachable and writable.
	// Never returns an error; every internal failure degrades to false.
	HealthCheck(ctx context.Context) bool
}
