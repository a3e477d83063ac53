// Package objectstore provides bucket-backed object repositories (S3, GCS)
// used as an alternative home for shard and parity blobs.
package objectstore

import (
	"context"
	"io"
)

// ObjectRepository defines the interface for object storage operations.
// Download of a missing key returns an error wrapping errors.ErrNotFound.
type ObjectRepository interface {
	Upload(ctx context.Context, key string, r io.Reader, quiet bool) (string, error)
	Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	GetBucketName() string
	GetStorageType() string
}

// RepositoryType represents the type of object storage
type RepositoryType string

const (
	S3Type  RepositoryType = "s3"
	GCSType RepositoryType = "gcs"
)

// BucketConfig holds configuration for a storage bucket
type BucketConfig struct {
	Name string
	Type RepositoryType
}
