package shardstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/zzenonn/zraid/internal/domain"
	"github.com/zzenonn/zraid/internal/repository/objectstore"
)

// ObjectShardStore keeps blobs in an S3 or GCS bucket using the same layout
// as FSShardStore, below an optional key prefix.
type ObjectShardStore struct {
	repo   objectstore.ObjectRepository
	prefix string
}

// NewObjectShardStore wraps an object repository.
func NewObjectShardStore(repo objectstore.ObjectRepository, prefix string) *ObjectShardStore {
	return &ObjectShardStore{repo: repo, prefix: strings.Trim(prefix, "/")}
}

func (s *ObjectShardStore) objectKey(key domain.ShardKey) (string, error) {
	rel, err := RelativePath(key)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, rel), nil
}

// Put uploads the blob.
func (s *ObjectShardStore) Put(ctx context.Context, key domain.ShardKey, data []byte) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := s.repo.Upload(ctx, k, bytes.NewReader(data), true); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Get downloads the blob. Repositories report missing keys as ErrNotFound.
func (s *ObjectShardStore) Get(ctx context.Context, key domain.ShardKey) ([]byte, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.repo.Download(ctx, k, true)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Delete removes the blob.
func (s *ObjectShardStore) Delete(ctx context.Context, key domain.ShardKey) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, k)
}

// List returns the blob names stored on node.
func (s *ObjectShardStore) List(ctx context.Context, node string) ([]string, error) {
	if err := ValidateName(node); err != nil {
		return nil, err
	}
	dir := path.Join(s.prefix, node) + "/"
	keys, err := s.repo.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, dir)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
