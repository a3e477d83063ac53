package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/zzenonn/zraid/internal/service"
)

type uploadRecorder struct {
	uploads    map[string][]byte
	UploadFunc func(key string) error
}

func (u *uploadRecorder) Upload(ctx context.Context, key string, r io.Reader, quiet bool) (string, error) {
	if u.UploadFunc != nil {
		if err := u.UploadFunc(key); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if u.uploads == nil {
		u.uploads = make(map[string][]byte)
	}
	u.uploads[key] = data
	return key, nil
}

func (u *uploadRecorder) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(u.uploads[key])), nil
}

func (u *uploadRecorder) Delete(ctx context.Context, key string) error { return nil }

func (u *uploadRecorder) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func (u *uploadRecorder) GetBucketName() string  { return "results" }
func (u *uploadRecorder) GetStorageType() string { return "memory" }

func TestPublishResults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "raid5_recovered_a.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	repo := &uploadRecorder{}
	publisher := service.NewResultsPublisher(repo, "run-1", nil)
	results := service.Results{RAID5: service.ModeResult{Success: 1}, RAID6: service.ModeResult{Failed: 1}}

	keys, err := publisher.PublishResults(context.Background(), results, dir, true)
	if err != nil {
		t.Fatalf("PublishResults() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("PublishResults() keys = %v, want 2 keys", keys)
	}
	if string(repo.uploads["run-1/raid5_recovered_a.png"]) != "png" {
		t.Errorf("image not uploaded, got keys %v", keys)
	}

	var got service.Results
	if err := json.Unmarshal(repo.uploads["run-1/"+service.ResultsKey], &got); err != nil {
		t.Fatalf("summary is not valid JSON: %v", err)
	}
	if got != results {
		t.Errorf("summary = %+v, want %+v", got, results)
	}
}

func TestPublishResults_UploadError(t *testing.T) {
	uploadErr := errors.New("denied")
	repo := &uploadRecorder{UploadFunc: func(string) error { return uploadErr }}
	publisher := service.NewResultsPublisher(repo, "", nil)

	_, err := publisher.PublishResults(context.Background(), service.Results{}, t.TempDir(), true)
	if !errors.Is(err, uploadErr) {
		t.Errorf("PublishResults() error = %v, want %v", err, uploadErr)
	}
}
