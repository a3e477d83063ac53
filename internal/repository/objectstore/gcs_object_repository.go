package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	zerrors "github.com/zzenonn/zraid/internal/errors"
	"google.golang.org/api/iterator"
)

// GCSObjectRepository implements ObjectRepository for Google Cloud Storage
type GCSObjectRepository struct {
	client     *storage.Client
	bucketName string
}

// NewGCSObjectRepository creates a new GCS object repository
func NewGCSObjectRepository(client *storage.Client, bucketName string) GCSObjectRepository {
	return GCSObjectRepository{
		client:     client,
		bucketName: bucketName,
	}
}

// Upload uploads a blob to GCS
func (r *GCSObjectRepository) Upload(ctx context.Context, key string, reader io.Reader, quiet bool) (string, error) {
	writer := r.client.Bucket(r.bucketName).Object(key).NewWriter(ctx)

	var proxyReader io.Reader = reader
	if !quiet {
		log.Debugf("Uploading to GCS: gs://%s/%s", r.bucketName, key)
		bar := progressbar.DefaultBytes(readerSize(reader), "uploading "+key)
		pbReader := progressbar.NewReader(reader, bar)
		proxyReader = &pbReader
	}

	if _, err := io.Copy(writer, proxyReader); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to upload to GCS: %w", err)
	}
	// The object is only committed once Close succeeds.
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to upload to GCS: %w", err)
	}

	return fmt.Sprintf("%s/%s", r.bucketName, key), nil
}

// progressReader wraps a ReadCloser with a progress bar
type progressReader struct {
	r   io.ReadCloser
	bar *progressbar.ProgressBar
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.r.Read(p)
	if pr.bar != nil {
		pr.bar.Add(n)
	}
	return n, err
}

func (pr *progressReader) Close() error {
	return pr.r.Close()
}

// Download downloads a blob from GCS
func (r *GCSObjectRepository) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	reader, err := r.client.Bucket(r.bucketName).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, zerrors.NotFoundError("gs://" + r.bucketName + "/" + key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download from GCS: %w", err)
	}

	if quiet {
		return reader, nil
	}

	log.Debugf("Downloading from GCS: gs://%s/%s", r.bucketName, key)
	bar := progressbar.DefaultBytes(reader.Attrs.Size, "downloading "+key)
	return &progressReader{r: reader, bar: bar}, nil
}

// Delete deletes a blob from GCS
func (r *GCSObjectRepository) Delete(ctx context.Context, key string) error {
	err := r.client.Bucket(r.bucketName).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// List returns every key below prefix
func (r *GCSObjectRepository) List(ctx context.Context, prefix string) ([]string, error) {
	it := r.client.Bucket(r.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// GetBucketName returns the bucket name
func (r *GCSObjectRepository) GetBucketName() string {
	return r.bucketName
}

// GetStorageType returns the storage type
func (r *GCSObjectRepository) GetStorageType() string {
	return string(GCSType)
}
