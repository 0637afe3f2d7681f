package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local stores evidence files on the local filesystem under a configurable
// root directory. Keys are the forward-slash hierarchical keys produced by
// BuildKey; every operation resolves its key through a containment check so
// no key can read or write outside the root.
type Local struct {
	root string
}

// NewLocal creates a Local provider rooted at root, creating the directory
// if needed. The root is resolved to its canonical absolute form once so all
// later containment checks compare against a stable base.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("canonicalize storage root: %w", err)
	}
	return &Local{root: realRoot}, nil
}

// Root returns the canonical root directory.
func (l *Local) Root() string { return l.root }

// resolve maps a storage key to an absolute path under the root, rejecting
// any key that would escape it. The check is two-phase: a lexical check on
// the cleaned join, then a canonical check that resolves symlinks in the
// deepest existing ancestor. Comparing un-resolved strings alone would let a
// symlinked directory inside the root point anywhere.
func (l *Local) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	joined := filepath.Join(l.root, filepath.FromSlash(key))
	if !l.contains(joined) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	real, err := canonicalExisting(joined)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", key, err)
	}
	if !l.contains(real) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	return joined, nil
}

// contains reports whether p is a strict descendant of the root.
func (l *Local) contains(p string) bool {
	rel, err := filepath.Rel(l.root, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// canonicalExisting resolves symlinks in the deepest existing ancestor of p
// and re-joins the not-yet-created remainder. Needed because upload targets
// do not exist yet but their parents might be symlinks.
func canonicalExisting(p string) (string, error) {
	suffix := ""
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(p), suffix)
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		p = parent
	}
}

// Upload streams r to the resolved path in ChunkSize slices, via a temp file
// renamed into place so a failed write never leaves a partial object.
func (l *Local) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	dest, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("%w: mkdir %q: %v", ErrWriteFailed, filepath.Dir(dest), err)
	}

	tmp := dest + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("%w: open %q: %v", ErrWriteFailed, tmp, err)
	}

	_, werr := io.CopyBuffer(f, r, make([]byte, ChunkSize))
	cerr := f.Close()

	if werr != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, werr)
	}
	if cerr != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", fmt.Errorf("%w: flush: %v", ErrWriteFailed, cerr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", fmt.Errorf("%w: rename to %q: %v", ErrWriteFailed, dest, err)
	}
	return key, nil
}

// DownloadStream opens the resolved path for sequential reading. Existence
// is checked before any byte is yielded; the caller must close the stream.
func (l *Local) DownloadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", key, err)
	}
	return f, nil
}

// Delete removes the file at key. Returns false when the file is already
// absent. After a successful removal, now-empty parent directories are
// pruned best-effort; non-empty directories are expected and left alone.
func (l *Local) Delete(ctx context.Context, key string) (bool, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: remove %q: %v", ErrBackend, key, err)
	}
	for dir := filepath.Dir(abs); l.contains(dir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return true, nil
}

// Exists reports whether a file is stored at key. A traversal attempt is
// answered with false rather than an error: this probe is used for
// existence checks, never for destructive actions.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(abs)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %q: %w", key, err)
	}
	return true, nil
}

// HealthCheck verifies the root is writable by creating and removing a
// marker file. Any failure degrades to false.
func (l *Local) HealthCheck(ctx context.Context) bool {
	marker := filepath.Join(l.root, ".healthcheck")
	f, err := os.OpenFile(marker, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return false
	}
	f.Close()
	return os.Remove(marker) == nil
}
