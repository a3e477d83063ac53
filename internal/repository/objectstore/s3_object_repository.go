package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/schollz/progressbar/v3"
	zerrors "github.com/zzenonn/zraid/internal/errors"
)

// S3ObjectRepository manages S3 interactions for blobs.
type S3ObjectRepository struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
}

// NewS3ObjectRepository initializes a new S3ObjectRepository.
func NewS3ObjectRepository(client *s3.Client, bucketName string) S3ObjectRepository {
	return S3ObjectRepository{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucketName: bucketName,
	}
}

// GetBucketName returns the bucket name.
func (r *S3ObjectRepository) GetBucketName() string {
	return r.bucketName
}

// GetStorageType returns the object store type.
func (r *S3ObjectRepository) GetStorageType() string {
	return string(S3Type)
}

// Upload uploads a blob to S3
func (r *S3ObjectRepository) Upload(ctx context.Context, key string, reader io.Reader, quiet bool) (string, error) {
	var body io.Reader = reader
	if !quiet {
		bar := progressbar.DefaultBytes(readerSize(reader), "uploading "+key)
		pbReader := progressbar.NewReader(reader, bar)
		body = &pbReader
	}

	_, err := r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to s3://%s/%s: %w", r.bucketName, key, err)
	}
	return r.bucketName + "/" + key, nil
}

// Download downloads a blob from S3
func (r *S3ObjectRepository) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, zerrors.NotFoundError("s3://" + r.bucketName + "/" + key)
		}
		return nil, err
	}

	if !quiet && result.ContentLength != nil {
		bar := progressbar.DefaultBytes(*result.ContentLength, "downloading "+key)
		proxyReader := progressbar.NewReader(result.Body, bar)
		return &progressReaderCloser{Reader: &proxyReader, Closer: result.Body}, nil
	}
	return result.Body, nil
}

type progressReaderCloser struct {
	io.Reader
	io.Closer
}

// Delete removes a blob from S3
func (r *S3ObjectRepository) Delete(ctx context.Context, key string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
	})
	return err
}

// List returns every key below prefix
func (r *S3ObjectRepository) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", r.bucketName, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// readerSize returns the remaining length of a seekable reader, or -1.
func readerSize(reader io.Reader) int64 {
	seeker, ok := reader.(io.Seeker)
	if !ok {
		return -1
	}
	current, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	end, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return -1
	}
	if _, err := seeker.Seek(current, io.SeekStart); err != nil {
		return -1
	}
	return end - current
}
