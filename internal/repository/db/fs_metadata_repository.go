package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
	"github.com/zzenonn/zraid/internal/repository/shardstore"
)

const metadataExt = ".json"

// FSMetadataRepository keeps one JSON document per object under dir.
type FSMetadataRepository struct {
	mu  sync.RWMutex
	dir string
}

// NewFSMetadataRepository stores records in dir, usually
// <storage_path>/catalog.
func NewFSMetadataRepository(dir string) *FSMetadataRepository {
	return &FSMetadataRepository{dir: dir}
}

func (repo *FSMetadataRepository) path(name string) (string, error) {
	if err := shardstore.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(repo.dir, name+metadataExt), nil
}

// CreateMetadata writes the record, replacing any previous one.
func (repo *FSMetadataRepository) CreateMetadata(ctx context.Context, metadata domain.ObjectMetadata) (domain.ObjectMetadata, error) {
	p, err := repo.path(metadata.Name)
	if err != nil {
		return domain.ObjectMetadata{}, err
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	if err := os.MkdirAll(repo.dir, 0o755); err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to create metadata: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return domain.ObjectMetadata{}, fmt.Errorf("failed to create metadata: %w", err)
	}
	return metadata, nil
}

// GetMetadata reads the record for name.
func (repo *FSMetadataRepository) GetMetadata(ctx context.Context, name string) (domain.ObjectMetadata, error) {
	p, err := repo.path(name)
	if err != nil {
		return domain.ObjectMetadata{}, err
	}

	repo.mu.RLock()
	defer repo.mu.RUnlock()
	return readMetadata(p, name)
}

func readMetadata(p, name string) (domain.ObjectMetadata, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ObjectMetadata{}, zerrors.NotFoundError("object " + name)
	}
	if err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to get metadata: %w", err)
	}
	var metadata domain.ObjectMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to unmarshal metadata for %s: %w", name, err)
	}
	return metadata, nil
}

// ListMetadata returns every record sorted by name.
func (repo *FSMetadataRepository) ListMetadata(ctx context.Context) ([]domain.ObjectMetadata, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	entries, err := os.ReadDir(repo.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	var metadataList []domain.ObjectMetadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metadataExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), metadataExt)
		metadata, err := readMetadata(filepath.Join(repo.dir, e.Name()), name)
		if err != nil {
			return nil, err
		}
		metadataList = append(metadataList, metadata)
	}

	sort.Slice(metadataList, func(i, j int) bool { return metadataList[i].Name < metadataList[j].Name })
	return metadataList, nil
}

// DeleteMetadata removes the record. Deleting an unknown name is not an error.
func (repo *FSMetadataRepository) DeleteMetadata(ctx context.Context, name string) error {
	p, err := repo.path(name)
	if err != nil {
		return err
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}
