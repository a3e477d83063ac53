package shardstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
)

// FSShardStore keeps blobs as files below a root directory.
type FSShardStore struct {
	root string
}

// NewFSShardStore creates a store rooted at root. The directory is created
// lazily on first write.
func NewFSShardStore(root string) *FSShardStore {
	return &FSShardStore{root: root}
}

// Root returns the storage path.
func (s *FSShardStore) Root() string {
	return s.root
}

func (s *FSShardStore) path(key domain.ShardKey) (string, error) {
	rel, err := RelativePath(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

// Put writes the blob through a temporary file and renames it into place.
func (s *FSShardStore) Put(ctx context.Context, key domain.ShardKey, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}

	log.Tracef("Stored %d bytes at %s", len(data), p)
	return nil
}

// Get reads the blob under key.
func (s *FSShardStore) Get(ctx context.Context, key domain.ShardKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, zerrors.NotFoundError(key.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob under key.
func (s *FSShardStore) Delete(ctx context.Context, key domain.ShardKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns the blob names stored on node, sorted.
func (s *FSShardStore) List(ctx context.Context, node string) ([]string, error) {
	if err := ValidateName(node); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, node))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list node %s: %w", node, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
