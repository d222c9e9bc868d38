package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"retail-medallion/internal/domain"
)

// Compile-time check.
var (
	_ domain.ObjectStore = (*GCSStore)(nil)
	_ io.Closer          = (*GCSStore)(nil)
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	loc    Location
}

// NewGCSStore creates a GCSStore authenticated with a service account key file.
func NewGCSStore(ctx context.Context, loc Location, creds *domain.StorageCredentials) (*GCSStore, error) {
	data, err := os.ReadFile(creds.GCSKeyFilePath)
	if err != nil {
		return nil, domain.ErrStorageAccess(loc.Raw, err, "read GCS key file")
	}
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(data))
	if err != nil {
		return nil, domain.ErrStorageAccess(loc.Raw, err, "create GCS client")
	}
	return &GCSStore{client: client, loc: loc}, nil
}

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.loc.Bucket).Object(s.loc.objectKey(key))
}

// Get opens a reader on the object for key.
func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		return nil, s.classify(key, err)
	}
	return r, nil
}

// Put uploads r. The object only becomes visible when the writer is closed.
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	// Cancelling the writer's context aborts the upload without committing.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.object(key).NewWriter(wctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return s.classify(key, err)
	}
	if err := w.Close(); err != nil {
		return s.classify(key, err)
	}
	return nil
}

// Exists fetches the object's attributes.
func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := s.object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, s.classify(key, err)
}

// Close releases the underlying GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// URI returns the gs:// URI of key.
func (s *GCSStore) URI(key string) string {
	return s.loc.uri(key)
}

func (s *GCSStore) classify(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return domain.ErrNotFound("object %s not found", s.URI(key))
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return domain.ErrStorageAccess(s.URI(key), err, "access denied by GCS")
	}
	return fmt.Errorf("gcs %s: %w", s.URI(key), err)
}
