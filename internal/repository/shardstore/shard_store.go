// Package shardstore maps (node, object, role) keys to stored shard and
// parity blobs.
//
// Layout, relative to the store root:
//
//	<node>/<object>                 data shards
//	<parity-node>/parity5_<object>  single parity
//	<parity-node>/parity6_p_<object>
//	<parity-node>/parity6_q_<object>
//
// Stores hold no business logic: they read, write, delete and list blobs.
package shardstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
)

// ShardStore is implemented by every blob backend.
type ShardStore interface {
	// Put writes data under key, replacing any previous blob.
	Put(ctx context.Context, key domain.ShardKey, data []byte) error
	// Get returns the blob under key or an error wrapping ErrNotFound.
	Get(ctx context.Context, key domain.ShardKey) ([]byte, error)
	// Delete removes the blob under key. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key domain.ShardKey) error
	// List returns the relative blob names stored on node.
	List(ctx context.Context, node string) ([]string, error)
}

var parityPrefixes = map[domain.Role]string{
	domain.RoleParity5:  "parity5_",
	domain.RoleParity6P: "parity6_p_",
	domain.RoleParity6Q: "parity6_q_",
}

// ValidateName rejects names that would escape the node directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", zerrors.ErrInvalidKey, name)
	}
	return nil
}

// BlobName returns the file name of key within its node directory.
func BlobName(key domain.ShardKey) string {
	if prefix, ok := parityPrefixes[key.Role]; ok {
		return prefix + key.Object
	}
	return key.Object
}

// RelativePath returns the slash separated path of key below the store root.
func RelativePath(key domain.ShardKey) (string, error) {
	if err := ValidateName(key.Node); err != nil {
		return "", err
	}
	if err := ValidateName(key.Object); err != nil {
		return "", err
	}
	return path.Join(key.Node, BlobName(key)), nil
}
