package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zraid/internal/repository/objectstore"
)

// ResultsKey is the object name of the summary written by PublishResults.
const ResultsKey = "results.json"

// ResultsPublisher copies RAID test output to a bucket without erasure coding.
type ResultsPublisher struct {
	objectRepo objectstore.ObjectRepository
	prefix     string
	logger     log.FieldLogger
}

func NewResultsPublisher(objectRepo objectstore.ObjectRepository, prefix string, logger log.FieldLogger) *ResultsPublisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ResultsPublisher{
		objectRepo: objectRepo,
		prefix:     prefix,
		logger:     logger,
	}
}

// PublishResults uploads the summary and every regular file directly under
// outputDir. It returns the keys written.
func (p *ResultsPublisher) PublishResults(ctx context.Context, results Results, outputDir string, quiet bool) ([]string, error) {
	summary, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}

	var keys []string
	key := path.Join(p.prefix, ResultsKey)
	if _, err := p.objectRepo.Upload(ctx, key, bytes.NewReader(summary), quiet); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}
	keys = append(keys, key)

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return keys, fmt.Errorf("failed to read output directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key := path.Join(p.prefix, e.Name())
		if err := p.uploadFile(ctx, key, filepath.Join(outputDir, e.Name()), quiet); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	p.logger.WithField("bucket", p.objectRepo.GetBucketName()).Infof("Published %d result files", len(keys))
	return keys, nil
}

func (p *ResultsPublisher) uploadFile(ctx context.Context, key, filePath string, quiet bool) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	p.logger.Debugf("Uploading %s to %s", filePath, key)
	if _, err := p.objectRepo.Upload(ctx, key, f, quiet); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
