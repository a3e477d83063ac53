package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
)

const (
	BackendFS       = "fs"
	BackendS3       = "s3"
	BackendGCS      = "gcs"
	BackendDynamoDB = "dynamodb"

	ClusterSimulated  = "simulated"
	ClusterKubernetes = "kubernetes"
)

// Config holds the application configuration
type Config struct {
	LogLevel string `yaml:"log_level"`

	StoragePath    string `yaml:"storage_path"`
	StorageBackend string `yaml:"storage_backend"`
	Bucket         string `yaml:"bucket"`
	CatalogBackend string `yaml:"catalog_backend"`
	DynamoDBTable  string `yaml:"dynamodb_table"`

	ParityMode domain.ParityMode `yaml:"parity_mode"`
	Nodes      []string          `yaml:"nodes"`
	ParityNode string            `yaml:"parity_node"`

	MaxConcurrentRecoveries int           `yaml:"max_concurrent_recoveries"`
	GracePeriod             time.Duration `yaml:"grace_period"`
	Namespace               string        `yaml:"namespace"`
	WorkerLabel             string        `yaml:"worker_label"`
	ProtectedNamespaces     []string      `yaml:"protected_namespaces"`
	MonitorInterval         time.Duration `yaml:"monitor_interval"`
	MaxFailures             int           `yaml:"max_failures"`
	MetricsAddr             string        `yaml:"metrics_addr"`
	Cluster                 string        `yaml:"cluster"`
	Kubeconfig              string        `yaml:"kubeconfig"`

	ImageDir            string  `yaml:"image_dir"`
	OutputDir           string  `yaml:"output_dir"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	if err := setupViper(configPath, rootCmd); err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:                viper.GetString("log_level"),
		StoragePath:             viper.GetString("storage_path"),
		StorageBackend:          viper.GetString("storage_backend"),
		Bucket:                  viper.GetString("bucket"),
		CatalogBackend:          viper.GetString("catalog_backend"),
		DynamoDBTable:           viper.GetString("dynamodb_table"),
		ParityMode:              domain.ParityMode(viper.GetString("parity_mode")),
		Nodes:                   viper.GetStringSlice("nodes"),
		ParityNode:              viper.GetString("parity_node"),
		MaxConcurrentRecoveries: viper.GetInt("max_concurrent_recoveries"),
		GracePeriod:             viper.GetDuration("grace_period"),
		Namespace:               viper.GetString("namespace"),
		WorkerLabel:             viper.GetString("worker_label"),
		ProtectedNamespaces:     viper.GetStringSlice("protected_namespaces"),
		MonitorInterval:         viper.GetDuration("monitor_interval"),
		MaxFailures:             viper.GetInt("max_failures"),
		MetricsAddr:             viper.GetString("metrics_addr"),
		Cluster:                 viper.GetString("cluster"),
		Kubeconfig:              viper.GetString("kubeconfig"),
		ImageDir:                viper.GetString("image_dir"),
		OutputDir:               viper.GetString("output_dir"),
		SimilarityThreshold:     viper.GetFloat64("similarity_threshold"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupViper configures Viper with defaults, paths, and bindings
func setupViper(configPath string, rootCmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	viper.AutomaticEnv()

	if rootCmd != nil {
		// Flags are spelled with dashes, config keys with underscores.
		var bindErr error
		rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			if err := viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("storage_path", "./storage")
	viper.SetDefault("storage_backend", BackendFS)
	viper.SetDefault("bucket", "")
	viper.SetDefault("catalog_backend", BackendFS)
	viper.SetDefault("dynamodb_table", "zraid-objects")
	viper.SetDefault("parity_mode", string(domain.RAID5))
	viper.SetDefault("nodes", []string{"node-1", "node-2", "node-3"})
	viper.SetDefault("parity_node", "parity")
	viper.SetDefault("max_concurrent_recoveries", 1)
	viper.SetDefault("grace_period", 30*time.Second)
	viper.SetDefault("namespace", "cloud-storage")
	viper.SetDefault("worker_label", "role=worker")
	viper.SetDefault("protected_namespaces", []string{"kube-system"})
	viper.SetDefault("monitor_interval", 30*time.Second)
	viper.SetDefault("max_failures", 1)
	viper.SetDefault("metrics_addr", ":8000")
	viper.SetDefault("cluster", ClusterSimulated)
	viper.SetDefault("kubeconfig", "")
	viper.SetDefault("image_dir", "Imagedata/test")
	viper.SetDefault("output_dir", "test_results")
	viper.SetDefault("similarity_threshold", 1.0)
}

// Validate checks the settings that would otherwise fail deep inside a
// command.
func (c *Config) Validate() error {
	if !c.ParityMode.Valid() {
		return fmt.Errorf("%w: %q", zerrors.ErrUnsupportedMode, c.ParityMode)
	}
	if len(c.Nodes) == 0 {
		return zerrors.ConfigNotSetError("nodes")
	}
	if len(c.Nodes) < domain.DataShards {
		return fmt.Errorf("nodes must list at least %d data nodes, got %d", domain.DataShards, len(c.Nodes))
	}
	if c.ParityNode == "" {
		return zerrors.ConfigNotSetError("parity_node")
	}
	for _, n := range c.Nodes {
		if n == c.ParityNode {
			return fmt.Errorf("node %s is also the parity node", n)
		}
	}
	if c.MaxConcurrentRecoveries < 1 {
		return fmt.Errorf("max_concurrent_recoveries must be at least 1, got %d", c.MaxConcurrentRecoveries)
	}
	if c.MaxFailures < 1 {
		return fmt.Errorf("max_failures must be at least 1, got %d", c.MaxFailures)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within [0, 1], got %v", c.SimilarityThreshold)
	}

	switch c.StorageBackend {
	case BackendFS:
	case BackendS3, BackendGCS:
		if c.Bucket == "" {
			return zerrors.ConfigNotSetError("bucket")
		}
	default:
		return fmt.Errorf("unsupported storage_backend %q", c.StorageBackend)
	}

	switch c.CatalogBackend {
	case BackendFS:
	case BackendDynamoDB:
		if c.DynamoDBTable == "" {
			return zerrors.ConfigNotSetError("dynamodb_table")
		}
	default:
		return fmt.Errorf("unsupported catalog_backend %q", c.CatalogBackend)
	}

	switch c.Cluster {
	case ClusterSimulated, ClusterKubernetes:
	default:
		return fmt.Errorf("unsupported cluster %q", c.Cluster)
	}
	return nil
}

// LoadAWSConfig loads AWS SDK configuration. Only the s3 storage backend and
// the dynamodb catalog need it.
func LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %v", err)
	}
	return cfg, nil
}

// LoadGCSClient loads Google Cloud Storage client
func LoadGCSClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to create GCS client: %v", err)
	}
	return client, nil
}

// SetConfigValue sets a configuration value (used for CLI flags)
func SetConfigValue(key string, value interface{}) {
	viper.Set(key, value)
}
