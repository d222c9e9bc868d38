package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"retail-medallion/internal/domain"
)

// Compile-time check.
var _ domain.ObjectStore = (*LocalStore)(nil)

// LocalStore keeps objects as files under a directory.
type LocalStore struct {
	loc Location
}

// NewLocalStore creates a LocalStore rooted at the location's directory.
func NewLocalStore(loc Location) *LocalStore {
	return &LocalStore{loc: loc}
}

// Get opens the file for key.
func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.URI(key))
	if err != nil {
		return nil, s.classify(key, err)
	}
	return f, nil
}

// Put writes r to a temporary file next to the target and renames it into
// place, so a failed write never leaves a partial object behind.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	target := s.URI(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.classify(key, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return s.classify(key, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return s.classify(key, err)
	}
	committed = true
	return nil
}

// Exists reports whether a file exists for key.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.URI(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, s.classify(key, err)
}

// URI returns the filesystem path of key.
func (s *LocalStore) URI(key string) string {
	return s.loc.uri(key)
}

func (s *LocalStore) classify(key string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return domain.ErrNotFound("object %s not found", s.URI(key))
	case errors.Is(err, fs.ErrPermission):
		return domain.ErrStorageAccess(s.URI(key), err, "permission denied")
	default:
		return fmt.Errorf("%s: %w", s.URI(key), err)
	}
}

// ctxReader stops a copy once its context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
