package service_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
	"github.com/zzenonn/zraid/internal/placement"
	"github.com/zzenonn/zraid/internal/repository/db"
	"github.com/zzenonn/zraid/internal/repository/shardstore"
	"github.com/zzenonn/zraid/internal/service"
)

type testStorage struct {
	root    string
	store   *shardstore.FSShardStore
	catalog *db.FSMetadataRepository
	svc     *service.StorageService
}

func testPlacer(t *testing.T) *placement.RoundRobinPlacer {
	t.Helper()
	placer := placement.NewRoundRobinPlacer("parity")
	for _, n := range []string{"node-1", "node-2", "node-3"} {
		if err := placer.RegisterNode(n); err != nil {
			t.Fatal(err)
		}
	}
	return placer
}

func newTestStorage(t *testing.T) *testStorage {
	t.Helper()
	root := t.TempDir()
	placer := testPlacer(t)
	store := shardstore.NewFSShardStore(root)
	catalog := db.NewFSMetadataRepository(filepath.Join(root, "catalog"))
	return &testStorage{
		root:    root,
		store:   store,
		catalog: catalog,
		svc:     service.NewStorageService(store, catalog, placer, nil),
	}
}

func testObject(h, w, c int) domain.Object {
	shape := domain.Shape{Height: h, Width: w, Channels: c}
	data := make([]byte, shape.Len())
	for i := range data {
		data[i] = byte(i*7 + i/13)
	}
	return domain.Object{Shape: shape, Data: data}
}

// mockShardRepository wraps a real store and lets tests inject failures.
type mockShardRepository struct {
	service.ShardRepository
	putFunc func(key domain.ShardKey) error
}

func (m *mockShardRepository) Put(ctx context.Context, key domain.ShardKey, data []byte) error {
	if m.putFunc != nil {
		if err := m.putFunc(key); err != nil {
			return err
		}
	}
	return m.ShardRepository.Put(ctx, key, data)
}

func TestStorageService_PutGet(t *testing.T) {
	for _, mode := range []domain.ParityMode{domain.RAID5, domain.RAID6} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			ts := newTestStorage(t)
			obj := testObject(100, 100, 3)

			metadata, err := ts.svc.PutObject(ctx, "cat.png", obj, mode)
			if err != nil {
				t.Fatalf("PutObject failed: %v", err)
			}
			if metadata.SegmentHeight != 34 || metadata.ShardSize != 34*300 {
				t.Errorf("unexpected layout in metadata: %+v", metadata)
			}
			if len(metadata.ShardHashes) != len(mode.Roles()) {
				t.Errorf("expected a hash per role, got %v", metadata.ShardHashes)
			}
			for _, role := range mode.Roles() {
				if _, err := ts.store.Get(ctx, metadata.Key(role)); err != nil {
					t.Errorf("blob for %s not stored: %v", role, err)
				}
			}

			got, err := ts.svc.GetObject(ctx, "cat.png")
			if err != nil {
				t.Fatalf("GetObject failed: %v", err)
			}
			if got.Shape != obj.Shape || !bytes.Equal(got.Data, obj.Data) {
				t.Error("round trip changed the object")
			}
		})
	}
}

func TestStorageService_PutDuplicate(t *testing.T) {
	ctx := context.Background()
	ts := newTestStorage(t)
	obj := testObject(10, 10, 0)

	if _, err := ts.svc.PutObject(ctx, "a", obj, domain.RAID5); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if _, err := ts.svc.PutObject(ctx, "a", obj, domain.RAID5); !errors.Is(err, zerrors.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestStorageService_PutStoreFailure(t *testing.T) {
	ctx := context.Background()
	ts := newTestStorage(t)
	boom := errors.New("disk full")
	var mu sync.Mutex
	var written []domain.ShardKey
	failing := &mockShardRepository{
		ShardRepository: ts.store,
		putFunc: func(key domain.ShardKey) error {
			if key.Role == domain.RoleShard2 {
				return boom
			}
			mu.Lock()
			defer mu.Unlock()
			written = append(written, key)
			return nil
		},
	}
	svc := service.NewStorageService(failing, ts.catalog, testPlacer(t), nil)

	if _, err := svc.PutObject(ctx, "a", testObject(9, 4, 0), domain.RAID5); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := ts.catalog.GetMetadata(ctx, "a"); !errors.Is(err, zerrors.ErrNotFound) {
		t.Errorf("catalog must not record a failed put, got %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("expected the other three blobs to be written, got %v", written)
	}
	for _, key := range written {
		if _, err := ts.store.Get(ctx, key); !errors.Is(err, zerrors.ErrNotFound) {
			t.Errorf("blob %s of a failed put was left behind: %v", key, err)
		}
	}
}

// failingCatalog rejects every CreateMetadata call.
type failingCatalog struct {
	service.MetadataRepository
	err error
}

func (c *failingCatalog) CreateMetadata(context.Context, domain.ObjectMetadata) (domain.ObjectMetadata, error) {
	return domain.ObjectMetadata{}, c.err
}

func TestStorageService_PutCatalogFailure(t *testing.T) {
	ctx := context.Background()
	ts := newTestStorage(t)
	boom := errors.New("table unavailable")
	var mu sync.Mutex
	var written []domain.ShardKey
	recording := &mockShardRepository{
		ShardRepository: ts.store,
		putFunc: func(key domain.ShardKey) error {
			mu.Lock()
			defer mu.Unlock()
			written = append(written, key)
			return nil
		},
	}
	svc := service.NewStorageService(recording, &failingCatalog{ts.catalog, boom}, testPlacer(t), nil)

	if _, err := svc.PutObject(ctx, "a", testObject(9, 4, 0), domain.RAID6); !errors.Is(err, boom) {
		t.Fatalf("expected catalog error, got %v", err)
	}
	if len(written) != 5 {
		t.Fatalf("expected every blob to be written before the catalog, got %v", written)
	}
	for _, key := range written {
		if _, err := ts.store.Get(ctx, key); !errors.Is(err, zerrors.ErrNotFound) {
			t.Errorf("blob %s of a failed put was left behind: %v", key, err)
		}
	}
}

func TestStorageService_DegradedGet(t *testing.T) {
	tests := []struct {
		name      string
		mode      domain.ParityMode
		lostNodes []string
		wantErr   error
	}{
		{"raid5 one data node", domain.RAID5, []string{"node-2"}, nil},
		{"raid5 parity node", domain.RAID5, []string{"parity"}, nil},
		{"raid5 two data nodes", domain.RAID5, []string{"node-1", "node-3"}, zerrors.ErrInsufficientShards},
		{"raid6 two data nodes", domain.RAID6, []string{"node-1", "node-2"}, nil},
		{"raid6 one data node", domain.RAID6, []string{"node-3"}, nil},
		{"raid6 all data nodes", domain.RAID6, []string{"node-1", "node-2", "node-3"}, zerrors.ErrInsufficientShards},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ts := newTestStorage(t)
			obj := testObject(50, 20, 3)

			if _, err := ts.svc.PutObject(ctx, "img", obj, tt.mode); err != nil {
				t.Fatalf("PutObject failed: %v", err)
			}
			for _, node := range tt.lostNodes {
				if err := os.RemoveAll(filepath.Join(ts.root, node)); err != nil {
					t.Fatal(err)
				}
			}

			got, err := ts.svc.GetObject(ctx, "img")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetObject failed: %v", err)
			}
			if !bytes.Equal(got.Data, obj.Data) {
				t.Error("degraded read returned different bytes")
			}
		})
	}
}

func TestStorageService_CorruptBlobIsDiscarded(t *testing.T) {
	ctx := context.Background()
	ts := newTestStorage(t)
	obj := testObject(30, 30, 0)

	metadata, err := ts.svc.PutObject(ctx, "img", obj, domain.RAID5)
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	key := metadata.Key(domain.RoleShard1)
	data, _ := ts.store.Get(ctx, key)
	data[0] ^= 0xff
	if err := ts.store.Put(ctx, key, data); err != nil {
		t.Fatal(err)
	}

	got, err := ts.svc.GetObject(ctx, "img")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if !bytes.Equal(got.Data, obj.Data) {
		t.Error("corrupt shard leaked into the reconstructed object")
	}
}

func TestStorageService_Delete(t *testing.T) {
	ctx := context.Background()
	ts := newTestStorage(t)

	metadata, err := ts.svc.PutObject(ctx, "img", testObject(6, 6, 0), domain.RAID6)
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if err := ts.svc.DeleteObject(ctx, "img"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	for _, role := range domain.RAID6.Roles() {
		if _, err := ts.store.Get(ctx, metadata.Key(role)); !errors.Is(err, zerrors.ErrNotFound) {
			t.Errorf("blob %s survived delete: %v", role, err)
		}
	}
	if _, err := ts.svc.GetObject(ctx, "img"); !errors.Is(err, zerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := ts.svc.DeleteObject(ctx, "img"); !errors.Is(err, zerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a second delete, got %v", err)
	}
}

func TestStorageService_RepairObject(t *testing.T) {
	tests := []struct {
		name string
		mode domain.ParityMode
		node string
	}{
		{"raid5 data node", domain.RAID5, "node-1"},
		{"raid5 parity node", domain.RAID5, "parity"},
		{"raid6 data node", domain.RAID6, "node-3"},
		{"raid6 parity node", domain.RAID6, "parity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ts := newTestStorage(t)

			metadata, err := ts.svc.PutObject(ctx, "img", testObject(40, 16, 3), tt.mode)
			if err != nil {
				t.Fatalf("PutObject failed: %v", err)
			}
			before := make(map[domain.Role][]byte)
			for _, role := range metadata.RolesOn(tt.node) {
				before[role], _ = ts.store.Get(ctx, metadata.Key(role))
			}

			objects, err := ts.svc.ObjectsOn(ctx, tt.node)
			if err != nil || len(objects) != 1 {
				t.Fatalf("ObjectsOn() = %v, %v", objects, err)
			}
			if err := ts.svc.EvacuateNode(ctx, tt.node, objects); err != nil {
				t.Fatalf("EvacuateNode failed: %v", err)
			}
			for role := range before {
				if _, err := ts.store.Get(ctx, metadata.Key(role)); !errors.Is(err, zerrors.ErrNotFound) {
					t.Fatalf("evacuation left %s behind", role)
				}
			}

			if err := ts.svc.RepairObject(ctx, objects[0], tt.node); err != nil {
				t.Fatalf("RepairObject failed: %v", err)
			}
			for role, want := range before {
				got, err := ts.store.Get(ctx, metadata.Key(role))
				if err != nil {
					t.Fatalf("repaired blob %s missing: %v", role, err)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("repaired blob %s differs from the original", role)
				}
			}
		})
	}
}

func TestStorageService_ObjectsOnFilters(t *testing.T) {
	ctx := context.Background()
	ts := newTestStorage(t)

	if _, err := ts.svc.PutObject(ctx, "a", testObject(3, 3, 0), domain.RAID5); err != nil {
		t.Fatal(err)
	}
	objects, err := ts.svc.ObjectsOn(ctx, "node-9")
	if err != nil {
		t.Fatalf("ObjectsOn failed: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected no objects on an unknown node, got %v", objects)
	}
}
