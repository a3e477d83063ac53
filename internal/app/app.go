// Package app wires configuration into the storage, catalog, cluster and
// recovery components shared by the CLI and the daemon.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/zzenonn/zraid/internal/cluster"
	"github.com/zzenonn/zraid/internal/config"
	"github.com/zzenonn/zraid/internal/metrics"
	"github.com/zzenonn/zraid/internal/orchestrator"
	"github.com/zzenonn/zraid/internal/placement"
	"github.com/zzenonn/zraid/internal/repository/db"
	"github.com/zzenonn/zraid/internal/repository/objectstore"
	"github.com/zzenonn/zraid/internal/repository/shardstore"
	"github.com/zzenonn/zraid/internal/service"
)

// NewPlacer registers the configured data nodes.
func NewPlacer(cfg *config.Config) (*placement.RoundRobinPlacer, error) {
	placer := placement.NewRoundRobinPlacer(cfg.ParityNode)
	for _, node := range cfg.Nodes {
		if err := placer.RegisterNode(node); err != nil {
			return nil, err
		}
	}
	return placer, nil
}

// NewShardStore returns the blob store selected by storage_backend.
func NewShardStore(ctx context.Context, cfg *config.Config) (shardstore.ShardStore, error) {
	switch cfg.StorageBackend {
	case config.BackendFS:
		return shardstore.NewFSShardStore(cfg.StoragePath), nil
	case config.BackendS3:
		return NewShardStoreForBucket(ctx, bucketURI("s3", cfg.Bucket))
	case config.BackendGCS:
		return NewShardStoreForBucket(ctx, bucketURI("gs", cfg.Bucket))
	}
	return nil, fmt.Errorf("unsupported storage_backend %q", cfg.StorageBackend)
}

func bucketURI(scheme, bucket string) string {
	if strings.Contains(bucket, "://") {
		return bucket
	}
	return scheme + "://" + bucket
}

// NewShardStoreForBucket builds a bucket-backed store from a bucket URI such
// as "s3://shards/prefix" or "gs://shards".
func NewShardStoreForBucket(ctx context.Context, uri string) (shardstore.ShardStore, error) {
	repo, prefix, err := NewObjectRepository(ctx, uri)
	if err != nil {
		return nil, err
	}
	return shardstore.NewObjectShardStore(repo, prefix), nil
}

// NewObjectRepository resolves a bucket URI to a repository and the key
// prefix that follows the bucket name.
func NewObjectRepository(ctx context.Context, uri string) (objectstore.ObjectRepository, string, error) {
	bucket, prefix := splitBucketURI(uri)
	bucketConfig, err := objectstore.ParseBucketConfig(bucket)
	if err != nil {
		return nil, "", err
	}

	awsConfig, err := config.LoadAWSConfig(ctx)
	if err != nil {
		return nil, "", err
	}
	factory := objectstore.NewObjectRepositoryFactory(awsConfig, nil)
	if bucketConfig.Type == objectstore.GCSType {
		client, err := config.LoadGCSClient(ctx)
		if err != nil {
			return nil, "", err
		}
		factory = objectstore.NewObjectRepositoryFactory(awsConfig, client)
	}

	repo, err := factory.CreateRepository(bucketConfig)
	if err != nil {
		return nil, "", err
	}
	return repo, prefix, nil
}

func splitBucketURI(uri string) (bucket, prefix string) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return uri, ""
	}
	rest := uri[i+3:]
	j := strings.Index(rest, "/")
	if j < 0 {
		return uri, ""
	}
	return uri[:i+3+j], strings.Trim(rest[j+1:], "/")
}

// NewCatalog returns the catalog selected by catalog_backend.
func NewCatalog(ctx context.Context, cfg *config.Config) (db.Catalog, error) {
	switch cfg.CatalogBackend {
	case config.BackendFS:
		return db.NewFSMetadataRepository(filepath.Join(cfg.StoragePath, "catalog")), nil
	case config.BackendDynamoDB:
		awsConfig, err := config.LoadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		repo := db.NewMetadataRepository(dynamodb.NewFromConfig(awsConfig), cfg.DynamoDBTable)
		return &repo, nil
	}
	return nil, fmt.Errorf("unsupported catalog_backend %q", cfg.CatalogBackend)
}

// NewDatabase connects to DynamoDB for migrations.
func NewDatabase(ctx context.Context, cfg *config.Config) (*db.DynamoDb, error) {
	awsConfig, err := config.LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return db.NewDatabase(awsConfig, cfg.DynamoDBTable)
}

// NewStorageService wires store, catalog and placement.
func NewStorageService(ctx context.Context, cfg *config.Config, logger log.FieldLogger) (*service.StorageService, error) {
	store, err := NewShardStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	placer, err := NewPlacer(cfg)
	if err != nil {
		return nil, err
	}
	return service.NewStorageService(store, catalog, placer, logger), nil
}

// NewClusterClient returns the cluster collaborator selected by cluster. The
// simulated cluster holds every storage node, all Ready.
func NewClusterClient(cfg *config.Config) (cluster.Client, error) {
	switch cfg.Cluster {
	case config.ClusterKubernetes:
		return cluster.NewKubeClient(cfg.Kubeconfig)
	case config.ClusterSimulated:
		nodeLabels, err := labels.ConvertSelectorToLabelsMap(cfg.WorkerLabel)
		if err != nil {
			return nil, fmt.Errorf("invalid worker_label %q: %w", cfg.WorkerLabel, err)
		}
		nodes := append(append([]string(nil), cfg.Nodes...), cfg.ParityNode)
		return cluster.NewSimulatedCluster(nodeLabels, nodes...), nil
	}
	return nil, fmt.Errorf("unsupported cluster %q", cfg.Cluster)
}

// NewOrchestrator builds an orchestrator from cfg.
func NewOrchestrator(cfg *config.Config, client cluster.Client, repairer orchestrator.Repairer, recorder metrics.Recorder, logger log.FieldLogger) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		MaxConcurrent:       cfg.MaxConcurrentRecoveries,
		GracePeriod:         cfg.GracePeriod,
		ProtectedNamespaces: cfg.ProtectedNamespaces,
	}, client, repairer, recorder, logger)
}
