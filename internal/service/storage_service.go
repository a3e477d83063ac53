package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
	"github.com/zzenonn/zraid/internal/placement"
	"golang.org/x/sync/errgroup"
)

type ShardRepository interface {
	Put(ctx context.Context, key domain.ShardKey, data []byte) error
	Get(ctx context.Context, key domain.ShardKey) ([]byte, error)
	Delete(ctx context.Context, key domain.ShardKey) error
}

type MetadataRepository interface {
	CreateMetadata(ctx context.Context, metadata domain.ObjectMetadata) (domain.ObjectMetadata, error)
	GetMetadata(ctx context.Context, name string) (domain.ObjectMetadata, error)
	ListMetadata(ctx context.Context) ([]domain.ObjectMetadata, error)
	DeleteMetadata(ctx context.Context, name string) error
}

// StorageService stores erasure coded objects across nodes and repairs them.
type StorageService struct {
	store   ShardRepository
	catalog MetadataRepository
	placer  placement.Placer
	logger  log.FieldLogger
}

// NewStorageService creates a new StorageService instance
func NewStorageService(store ShardRepository, catalog MetadataRepository, placer placement.Placer, logger log.FieldLogger) *StorageService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &StorageService{
		store:   store,
		catalog: catalog,
		placer:  placer,
		logger:  logger,
	}
}

// Blobs are the verified blobs of one object. Missing or corrupt blobs are nil.
type Blobs struct {
	Shards domain.ShardSet
	// Parity holds the parity blocks in the role order of the object's mode.
	Parity [][]byte
}

// PutObject splits obj, computes parity for mode and writes one blob per role
// to the placed nodes before recording the object in the catalog.
func (s *StorageService) PutObject(ctx context.Context, name string, obj domain.Object, mode domain.ParityMode) (domain.ObjectMetadata, error) {
	logger := s.logger.WithField("object", name)

	if _, err := s.catalog.GetMetadata(ctx, name); err == nil {
		return domain.ObjectMetadata{}, fmt.Errorf("object %s: %w", name, zerrors.ErrAlreadyExists)
	} else if !errors.Is(err, zerrors.ErrNotFound) {
		return domain.ObjectMetadata{}, err
	}

	shards, layout, err := Split(obj)
	if err != nil {
		return domain.ObjectMetadata{}, err
	}
	parity, err := Parity(mode, shards)
	if err != nil {
		return domain.ObjectMetadata{}, err
	}
	roles, err := placement.Assign(s.placer, mode)
	if err != nil {
		return domain.ObjectMetadata{}, err
	}

	metadata := domain.ObjectMetadata{
		Name:          name,
		Shape:         obj.Shape,
		SegmentHeight: layout.SegmentHeight,
		ParityMode:    mode,
		Placement:     roles,
		ShardHashes:   make(map[domain.Role]string, len(roles)),
		OriginalSize:  int64(len(obj.Data)),
		ShardSize:     int64(layout.SegmentLen()),
		CreatedAt:     time.Now().UTC(),
	}

	blobs := make(map[domain.Role][]byte, len(roles))
	for i, shard := range shards {
		blobs[domain.ShardRole(i)] = shard
	}
	for i, role := range parityRoles(mode) {
		blobs[role] = parity[i]
	}
	for role, data := range blobs {
		metadata.ShardHashes[role] = ShardHash(data)
	}

	// Upload each blob in parallel
	var wg sync.WaitGroup
	errorCh := make(chan error, len(blobs))

	for role, data := range blobs {
		wg.Add(1)
		go func(role domain.Role, data []byte) {
			defer wg.Done()
			if err := s.store.Put(ctx, metadata.Key(role), data); err != nil {
				errorCh <- fmt.Errorf("failed to store %s of %s: %w", role, name, err)
			}
		}(role, data)
	}

	wg.Wait()
	close(errorCh)

	if err := <-errorCh; err != nil {
		s.discardBlobs(ctx, metadata, logger)
		return domain.ObjectMetadata{}, err
	}

	if _, err := s.catalog.CreateMetadata(ctx, metadata); err != nil {
		s.discardBlobs(ctx, metadata, logger)
		return domain.ObjectMetadata{}, err
	}

	logger.WithField("mode", mode).Infof("Stored object with %d blobs", len(blobs))
	return metadata, nil
}

// GetObject reads every blob of name and rebuilds the object, recovering lost
// or corrupt shards in memory when needed.
func (s *StorageService) GetObject(ctx context.Context, name string) (domain.Object, error) {
	metadata, err := s.catalog.GetMetadata(ctx, name)
	if err != nil {
		return domain.Object{}, err
	}

	blobs, err := s.ReadBlobs(ctx, metadata, "")
	if err != nil {
		return domain.Object{}, err
	}

	shards := blobs.Shards
	if shards.Available() < domain.DataShards {
		s.logger.WithField("object", name).Warnf("Degraded read, missing shards %v", shards.Missing())
		shards, err = Recover(metadata.ParityMode, blobs.Shards, blobs.Parity)
		if err != nil {
			return domain.Object{}, fmt.Errorf("failed to recover %s: %w", name, err)
		}
	}

	return Reconstruct(shards, metadata.Layout())
}

// discardBlobs removes the blobs of a put that never reached the catalog.
// Failures are logged; a missing blob is not an error.
func (s *StorageService) discardBlobs(ctx context.Context, metadata domain.ObjectMetadata, logger log.FieldLogger) {
	ctx = context.WithoutCancel(ctx)
	for _, role := range metadata.ParityMode.Roles() {
		err := s.store.Delete(ctx, metadata.Key(role))
		if err != nil && !errors.Is(err, zerrors.ErrNotFound) {
			logger.WithError(err).WithField("role", role).Warn("Failed to discard blob of incomplete put")
		}
	}
}

// DeleteObject deletes every blob of name and its catalog record.
func (s *StorageService) DeleteObject(ctx context.Context, name string) error {
	metadata, err := s.catalog.GetMetadata(ctx, name)
	if err != nil {
		return err
	}

	for _, role := range metadata.ParityMode.Roles() {
		if err := s.store.Delete(ctx, metadata.Key(role)); err != nil {
			return fmt.Errorf("failed to delete %s of %s: %w", role, name, err)
		}
	}

	if err := s.catalog.DeleteMetadata(ctx, name); err != nil {
		return err
	}
	s.logger.WithField("object", name).Info("Deleted object")
	return nil
}

// ListObjects returns the catalog.
func (s *StorageService) ListObjects(ctx context.Context) ([]domain.ObjectMetadata, error) {
	return s.catalog.ListMetadata(ctx)
}

// ObjectsOn returns the catalogued objects with at least one role on node.
func (s *StorageService) ObjectsOn(ctx context.Context, node string) ([]domain.ObjectMetadata, error) {
	all, err := s.catalog.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	var objects []domain.ObjectMetadata
	for _, metadata := range all {
		if len(metadata.RolesOn(node)) > 0 {
			objects = append(objects, metadata)
		}
	}
	return objects, nil
}

// EvacuateNode deletes the blobs the given objects keep on node.
func (s *StorageService) EvacuateNode(ctx context.Context, node string, objects []domain.ObjectMetadata) error {
	for _, metadata := range objects {
		for _, role := range metadata.RolesOn(node) {
			if err := s.store.Delete(ctx, metadata.Key(role)); err != nil {
				return fmt.Errorf("failed to evacuate %s of %s: %w", role, metadata.Name, err)
			}
		}
	}
	return nil
}

// RepairObject rebuilds the blobs metadata keeps on node from the blobs on
// every other node and writes them back.
func (s *StorageService) RepairObject(ctx context.Context, metadata domain.ObjectMetadata, node string) error {
	logger := s.logger.WithFields(log.Fields{"object": metadata.Name, "node": node})

	roles := metadata.RolesOn(node)
	if len(roles) == 0 {
		return nil
	}

	blobs, err := s.ReadBlobs(ctx, metadata, node)
	if err != nil {
		return err
	}

	shards := blobs.Shards
	if shards.Available() < domain.DataShards {
		logger.Debugf("Recovering shards %v from %d survivors", shards.Missing(), shards.Available())
		shards, err = Recover(metadata.ParityMode, blobs.Shards, blobs.Parity)
		if err != nil {
			return fmt.Errorf("failed to recover %s: %w", metadata.Name, err)
		}
	}

	var parity [][]byte
	for _, role := range roles {
		var data []byte
		if idx := role.ShardIndex(); idx >= 0 {
			data = shards[idx]
		} else {
			if parity == nil {
				if parity, err = Parity(metadata.ParityMode, shards); err != nil {
					return err
				}
			}
			data = parity[parityIndex(metadata.ParityMode, role)]
		}

		if want := metadata.ShardHashes[role]; want != "" && ShardHash(data) != want {
			return fmt.Errorf("%w: rebuilt %s of %s does not match the catalog hash", zerrors.ErrRecoveryVerificationFailed, role, metadata.Name)
		}
		if err := s.store.Put(ctx, metadata.Key(role), data); err != nil {
			return fmt.Errorf("failed to persist %s of %s: %w", role, metadata.Name, err)
		}
		logger.WithField("role", role).Info("Restored blob")
	}
	return nil
}

// ReadBlobs fetches every blob of the object in parallel, skipping roles
// placed on skipNode. Blobs that are missing or whose size or CRC disagree
// with the catalog come back nil. Only context errors abort the read.
func (s *StorageService) ReadBlobs(ctx context.Context, metadata domain.ObjectMetadata, skipNode string) (Blobs, error) {
	roles := metadata.ParityMode.Roles()
	results := make([][]byte, len(roles))

	g, gctx := errgroup.WithContext(ctx)
	for i, role := range roles {
		key := metadata.Key(role)
		if skipNode != "" && key.Node == skipNode {
			continue
		}
		g.Go(func() error {
			data, err := s.store.Get(gctx, key)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if !errors.Is(err, zerrors.ErrNotFound) {
					s.logger.WithFields(log.Fields{"object": metadata.Name, "node": key.Node}).
						Warnf("Treating %s as lost: %v", role, err)
				}
				return nil
			}
			if !blobMatches(metadata, role, data) {
				s.logger.WithFields(log.Fields{"object": metadata.Name, "node": key.Node}).
					Warnf("Discarding %s, checksum mismatch", role)
				return nil
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Blobs{}, err
	}

	var blobs Blobs
	for i, role := range roles {
		if idx := role.ShardIndex(); idx >= 0 {
			blobs.Shards[idx] = results[i]
		} else {
			blobs.Parity = append(blobs.Parity, results[i])
		}
	}
	return blobs, nil
}

func blobMatches(metadata domain.ObjectMetadata, role domain.Role, data []byte) bool {
	if metadata.ShardSize > 0 && int64(len(data)) != metadata.ShardSize {
		return false
	}
	want, ok := metadata.ShardHashes[role]
	return !ok || ShardHash(data) == want
}

func parityRoles(mode domain.ParityMode) []domain.Role {
	var roles []domain.Role
	for _, role := range mode.Roles() {
		if role.IsParity() {
			roles = append(roles, role)
		}
	}
	return roles
}

func parityIndex(mode domain.ParityMode, role domain.Role) int {
	for i, r := range parityRoles(mode) {
		if r == role {
			return i
		}
	}
	return -1
}
