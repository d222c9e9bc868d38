package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"retail-medallion/internal/domain"
)

// Compile-time check.
var _ domain.ObjectStore = (*S3Store)(nil)

// s3AccessCodes are S3 error codes that mean the credentials are wrong or
// lack permission.
var s3AccessCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"Forbidden":             true,
	"ExpiredToken":          true,
}

// S3Store keeps objects in an S3 or S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	loc    Location
}

// NewS3Store creates an S3Store with static credentials. A custom endpoint
// uses path-style addressing unless S3URLStyle is "vhost".
func NewS3Store(loc Location, creds *domain.StorageCredentials) *S3Store {
	opts := s3.Options{
		Region: creds.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.S3KeyID, creds.S3Secret, "",
		),
	}
	if creds.S3Endpoint != "" {
		endpoint := creds.S3Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = creds.S3URLStyle != "vhost"
	}
	return &S3Store{client: s3.New(opts), loc: loc}
}

// Get streams the object body for key.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.loc.Bucket),
		Key:    aws.String(s.loc.objectKey(key)),
	})
	if err != nil {
		return nil, s.classify(key, err)
	}
	return out.Body, nil
}

// Put uploads r as a single object. S3 replaces objects atomically.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	body, ok := r.(io.ReadSeeker)
	if !ok {
		// The SDK needs a seekable body to compute the payload hash.
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("buffer %s: %w", s.URI(key), err)
		}
		body = bytes.NewReader(data)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.loc.Bucket),
		Key:         aws.String(s.loc.objectKey(key)),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return s.classify(key, err)
	}
	return nil
}

// Exists issues a HEAD request for key.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.loc.Bucket),
		Key:    aws.String(s.loc.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, s.classify(key, err)
}

// URI returns the s3:// URI of key.
func (s *S3Store) URI(key string) string {
	return s.loc.uri(key)
}

func (s *S3Store) classify(key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return domain.ErrNotFound("object %s not found", s.URI(key))
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && s3AccessCodes[apiErr.ErrorCode()] {
		return domain.ErrStorageAccess(s.URI(key), err, "access denied by S3")
	}
	return fmt.Errorf("s3 %s: %w", s.URI(key), err)
}
