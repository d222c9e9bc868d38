// Package storage implements the layer locations of the medallion pipeline
// on the local filesystem, S3-compatible storage, Google Cloud Storage and
// Azure Blob Storage.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"retail-medallion/internal/domain"
)

// Scheme identifies a storage backend.
type Scheme string

// Supported schemes.
const (
	SchemeLocal Scheme = "file"
	SchemeS3    Scheme = "s3"
	SchemeGCS   Scheme = "gs"
	SchemeAzure Scheme = "az"
)

// Location is a parsed layer location: a bucket (or container) plus a key
// prefix. Local locations only carry Prefix, the directory path.
type Location struct {
	Scheme  Scheme
	Bucket  string
	Prefix  string
	Account string // Azure only, taken from abfss:// hosts
	Raw     string
}

// ParseLocation parses a layer location. Plain paths and file:// URIs are
// local; s3://, gs://, az:// and abfss:// select the matching remote backend.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, domain.ErrValidation("storage location is required")
	}
	if !strings.Contains(raw, "://") {
		return Location{Scheme: SchemeLocal, Prefix: filepath.Clean(raw), Raw: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, domain.ErrValidation("parse storage location %q: %v", raw, err)
	}
	prefix := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = u.Host + u.Path
		}
		return Location{Scheme: SchemeLocal, Prefix: filepath.Clean(filepath.FromSlash(p)), Raw: raw}, nil

	case "s3":
		if u.Host == "" {
			return Location{}, domain.ErrValidation("empty bucket in S3 location %q", raw)
		}
		return Location{Scheme: SchemeS3, Bucket: u.Host, Prefix: prefix, Raw: raw}, nil

	case "gs":
		if u.Host == "" {
			return Location{}, domain.ErrValidation("empty bucket in GCS location %q", raw)
		}
		return Location{Scheme: SchemeGCS, Bucket: u.Host, Prefix: prefix, Raw: raw}, nil

	case "az":
		// az://container/path
		if u.Host == "" {
			return Location{}, domain.ErrValidation("empty container in Azure location %q", raw)
		}
		return Location{Scheme: SchemeAzure, Bucket: u.Host, Prefix: prefix, Raw: raw}, nil

	case "abfss":
		// abfss://container@account.dfs.core.windows.net/path
		// url.Parse treats "container" as userinfo and the account host as host.
		if u.User == nil || u.User.Username() == "" {
			return Location{}, domain.ErrValidation("abfss location %q missing container@account component", raw)
		}
		account, _, _ := strings.Cut(u.Host, ".")
		return Location{Scheme: SchemeAzure, Bucket: u.User.Username(), Prefix: prefix, Account: account, Raw: raw}, nil

	default:
		return Location{}, domain.ErrValidation("unsupported storage scheme %q in %q", u.Scheme, raw)
	}
}

// objectKey joins the location prefix and a relative key.
func (l Location) objectKey(key string) string {
	if l.Prefix == "" {
		return key
	}
	return path.Join(l.Prefix, key)
}

// uri renders the full URI of key under this location.
func (l Location) uri(key string) string {
	if l.Scheme == SchemeLocal {
		return filepath.Join(l.Prefix, filepath.FromSlash(key))
	}
	return strings.TrimSuffix(l.Raw, "/") + "/" + key
}

// SplitObject splits the URI of a single object into its parent location and
// the object key, e.g. "s3://raw/exports/sales.csv" → ("s3://raw/exports", "sales.csv").
func SplitObject(raw string) (location, key string, err error) {
	trimmed := strings.TrimSuffix(raw, "/")
	idx := strings.LastIndexAny(trimmed, `/\`)
	if !strings.Contains(trimmed, "://") && idx < 0 {
		return ".", trimmed, nil
	}
	if idx < 0 || idx == len(trimmed)-1 || strings.HasSuffix(trimmed[:idx+1], "://") {
		return "", "", domain.ErrValidation("object URI %q has no object key", raw)
	}
	location, key = trimmed[:idx], trimmed[idx+1:]
	if location == "" {
		location = "/"
	}
	return location, key, nil
}

// validateKey rejects keys that would escape the location.
func validateKey(key string) error {
	if key == "" {
		return domain.ErrValidation("object key is required")
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`) {
		return domain.ErrValidation("object key %q must be relative", key)
	}
	for _, part := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return domain.ErrValidation("object key %q must not contain '..'", key)
		}
	}
	return nil
}

// Open returns the ObjectStore for a layer location. Remote schemes need the
// matching credentials; when they are missing Open fails with a
// StorageAccessError before any data is touched.
func Open(ctx context.Context, raw string, creds *domain.StorageCredentials) (domain.ObjectStore, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case SchemeLocal:
		return NewLocalStore(loc), nil
	case SchemeS3:
		if !creds.HasS3() {
			return nil, domain.ErrStorageAccess(raw, nil, "S3 credentials not configured (set S3_KEY_ID and S3_SECRET)")
		}
		return NewS3Store(loc, creds), nil
	case SchemeGCS:
		if !creds.HasGCS() {
			return nil, domain.ErrStorageAccess(raw, nil, "GCS credentials not configured (set GCS_KEY_FILE)")
		}
		return NewGCSStore(ctx, loc, creds)
	case SchemeAzure:
		if !creds.HasAzure() {
			return nil, domain.ErrStorageAccess(raw, nil, "Azure credentials not configured (set AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY)")
		}
		return NewAzureStore(loc, creds)
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", loc.Scheme)
	}
}
