package domain

// StorageCredentials carries the injected credentials for remote layer
// locations. Each backend only reads its own fields.
type StorageCredentials struct {
	// S3 fields
	S3KeyID    string
	S3Secret   string
	S3Endpoint string
	S3Region   string
	S3URLStyle string // "path" or "vhost"

	// Azure fields
	AzureAccountName string
	AzureAccountKey  string

	// GCS fields
	GCSKeyFilePath string
}

// HasS3 returns true if static S3 credentials are set.
func (c *StorageCredentials) HasS3() bool {
	return c != nil && c.S3KeyID != "" && c.S3Secret != ""
}

// HasAzure returns true if Azure shared-key credentials are set.
func (c *StorageCredentials) HasAzure() bool {
	return c != nil && c.AzureAccountName != "" && c.AzureAccountKey != ""
}

// HasGCS returns true if a GCS service account key file is set.
func (c *StorageCredentials) HasGCS() bool {
	return c != nil && c.GCSKeyFilePath != ""
}
