package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zraid/internal/config"
	"github.com/zzenonn/zraid/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		StoragePath:             t.TempDir(),
		StorageBackend:          config.BackendFS,
		CatalogBackend:          config.BackendFS,
		ParityMode:              domain.RAID5,
		Nodes:                   []string{"node-1", "node-2", "node-3"},
		ParityNode:              "parity",
		MaxConcurrentRecoveries: 1,
		GracePeriod:             time.Second,
		WorkerLabel:             "role=worker",
		Cluster:                 config.ClusterSimulated,
	}
}

func TestNewClusterClient_InvalidWorkerLabel(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkerLabel = "role in (a"
	_, err := NewClusterClient(cfg)
	assert.Error(t, err)
}

func TestNewShardStoreForBucket_RejectsUnknownScheme(t *testing.T) {
	_, err := NewShardStoreForBucket(context.Background(), "ftp://shards")
	assert.Error(t, err)
}

func TestNewStorageService_RecoversThroughOrchestrator(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	svc, err := NewStorageService(ctx, cfg, nil)
	require.NoError(t, err)

	shape := domain.Shape{Height: 9, Width: 9}
	obj := domain.Object{Shape: shape, Data: make([]byte, shape.Len())}
	for i := range obj.Data {
		obj.Data[i] = byte(i)
	}
	_, err = svc.PutObject(ctx, "obj", obj, cfg.ParityMode)
	require.NoError(t, err)

	client, err := NewClusterClient(cfg)
	require.NoError(t, err)
	nodes, err := client.ListNodes(ctx, cfg.WorkerLabel)
	require.NoError(t, err)
	assert.Len(t, nodes, 4)

	o := NewOrchestrator(cfg, client, svc, nil, nil)
	o.Start(ctx)
	defer o.Stop()

	_, err = o.RequestRecovery("node-2")
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, o.WaitIdle(waitCtx))
	assert.Equal(t, domain.NodeHealthy, o.State("node-2"))

	got, err := svc.GetObject(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, obj.Data, got.Data)
}

func TestUnsupportedBackends(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	cfg.StorageBackend = "tape"
	_, err := NewShardStore(ctx, cfg)
	assert.Error(t, err)

	cfg.CatalogBackend = "sql"
	_, err = NewCatalog(ctx, cfg)
	assert.Error(t, err)

	cfg.Cluster = "nomad"
	_, err = NewClusterClient(cfg)
	assert.Error(t, err)
}

func TestBucketURI(t *testing.T) {
	assert.Equal(t, "s3://shards", bucketURI("s3", "shards"))
	assert.Equal(t, "gs://shards/zraid", bucketURI("s3", "gs://shards/zraid"))
}

func TestSplitBucketURI(t *testing.T) {
	tests := []struct {
		uri, bucket, prefix string
	}{
		{"s3://shards", "s3://shards", ""},
		{"s3://shards/zraid/", "s3://shards", "zraid"},
		{"gs://shards/a/b", "gs://shards", "a/b"},
		{"s3:shards", "s3:shards", ""},
	}
	for _, tt := range tests {
		bucket, prefix := splitBucketURI(tt.uri)
		assert.Equal(t, tt.bucket, bucket, tt.uri)
		assert.Equal(t, tt.prefix, prefix, tt.uri)
	}
}
