package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"retail-medallion/internal/domain"
)

// Compile-time check.
var _ domain.ObjectStore = (*AzureStore)(nil)

// AzureStore keeps objects as block blobs in an Azure Blob Storage container.
type AzureStore struct {
	client *azblob.Client
	loc    Location
}

// NewAzureStore creates an AzureStore with shared-key credentials. An abfss://
// location naming a different account than the credentials is rejected.
func NewAzureStore(loc Location, creds *domain.StorageCredentials) (*AzureStore, error) {
	if loc.Account != "" && loc.Account != creds.AzureAccountName {
		return nil, domain.ErrStorageAccess(loc.Raw, nil,
			"location account %q does not match AZURE_STORAGE_ACCOUNT %q", loc.Account, creds.AzureAccountName)
	}
	cred, err := azblob.NewSharedKeyCredential(creds.AzureAccountName, creds.AzureAccountKey)
	if err != nil {
		return nil, domain.ErrStorageAccess(loc.Raw, err, "create shared key credential")
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", creds.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureStore{client: client, loc: loc}, nil
}

// Get downloads the blob for key as a stream.
func (s *AzureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.loc.Bucket, s.loc.objectKey(key), nil)
	if err != nil {
		return nil, s.classify(key, err)
	}
	return resp.Body, nil
}

// Put uploads r as a block blob. Blocks are committed in a single final call,
// so readers never observe a partial blob.
func (s *AzureStore) Put(ctx context.Context, key string, r io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.client.UploadStream(ctx, s.loc.Bucket, s.loc.objectKey(key), r, nil); err != nil {
		return s.classify(key, err)
	}
	return nil
}

// Exists fetches the blob's properties.
func (s *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	blob := s.client.ServiceClient().NewContainerClient(s.loc.Bucket).NewBlobClient(s.loc.objectKey(key))
	_, err := blob.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	return false, s.classify(key, err)
}

// URI returns the location URI of key.
func (s *AzureStore) URI(key string) string {
	return s.loc.uri(key)
}

func (s *AzureStore) classify(key string, err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return domain.ErrNotFound("object %s not found", s.URI(key))
	case bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions,
	):
		return domain.ErrStorageAccess(s.URI(key), err, "access denied by Azure")
	default:
		return fmt.Errorf("azure %s: %w", s.URI(key), err)
	}
}
