package objectstore

import (
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectRepositoryFactory creates object repository instances
type ObjectRepositoryFactory struct {
	awsConfig aws.Config
	gcsClient *storage.Client
}

// NewObjectRepositoryFactory creates a new factory. gcsClient may be nil when
// no GCS bucket is configured.
func NewObjectRepositoryFactory(awsConfig aws.Config, gcsClient *storage.Client) *ObjectRepositoryFactory {
	return &ObjectRepositoryFactory{
		awsConfig: awsConfig,
		gcsClient: gcsClient,
	}
}

// CreateRepository creates a repository based on bucket configuration
func (f *ObjectRepositoryFactory) CreateRepository(config BucketConfig) (ObjectRepository, error) {
	switch config.Type {
	case S3Type:
		repo := NewS3ObjectRepository(s3.NewFromConfig(f.awsConfig), config.Name)
		return &repo, nil
	case GCSType:
		if f.gcsClient == nil {
			return nil, fmt.Errorf("GCS client not configured")
		}
		repo := NewGCSObjectRepository(f.gcsClient, config.Name)
		return &repo, nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", config.Type)
	}
}

// ParseBucketConfig parses bucket configuration from string
// Formats: "s3://bucket-name", "gs://bucket-name", "gcs:bucket-name", or "bucket-name" (defaults to S3)
func ParseBucketConfig(bucketStr string) (BucketConfig, error) {
	bucketStr = strings.TrimSpace(bucketStr)

	// Handle URI format (s3://, gs://)
	if strings.Contains(bucketStr, "://") {
		parts := strings.SplitN(bucketStr, "://", 2)
		scheme := strings.ToLower(strings.TrimSpace(parts[0]))
		bucketName := strings.TrimSpace(parts[1])

		if bucketName == "" {
			return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
		}

		switch scheme {
		case "s3":
			return BucketConfig{Name: bucketName, Type: S3Type}, nil
		case "gs":
			return BucketConfig{Name: bucketName, Type: GCSType}, nil
		default:
			return BucketConfig{}, fmt.Errorf("unsupported scheme: %s", scheme)
		}
	}

	// Handle colon format (s3:bucket-name)
	parts := strings.SplitN(bucketStr, ":", 2)
	if len(parts) != 2 {
		if bucketStr == "" {
			return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
		}
		return BucketConfig{Name: bucketStr, Type: S3Type}, nil
	}

	repoType := RepositoryType(strings.ToLower(strings.TrimSpace(parts[0])))
	bucketName := strings.TrimSpace(parts[1])

	if bucketName == "" {
		return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
	}
	if repoType != S3Type && repoType != GCSType {
		return BucketConfig{}, fmt.Errorf("unsupported repository type: %s", repoType)
	}

	return BucketConfig{Name: bucketName, Type: repoType}, nil
}
