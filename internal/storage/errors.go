package storage

import "errors"

// ErrNotFound is returned when no object exists at the requested key.
var ErrNotFound = errors.New("object not found")

// ErrInvalidPath is returned by the local backend when a key would resolve
// outside the configured root (path traversal attempt).
var ErrInvalidPath = errors.New("key escapes storage root")

// ErrWriteFailed is returned when a write could not be completed (disk full,
// permission denied).
var ErrWriteFailed = errors.New("storage write failed")

// ErrBackend is returned for remote backend failures that are not a missing
// object: network errors, auth failures, throttling.
var ErrBackend = errors.New("storage backend error")

// ErrNotInitialized is returned when a storage-dependent operation runs
// before a backend was configured. Unreachable in correct wiring.
var ErrNotInitialized = errors.New("storage provider not initialized")
