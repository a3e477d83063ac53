package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zraid/internal/app"
	"github.com/zzenonn/zraid/internal/config"
	"github.com/zzenonn/zraid/internal/logging"
	"github.com/zzenonn/zraid/internal/service"
)

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "zraid",
	Short: "Erasure coded image storage with RAID5 and RAID6 parity",
	Long:  "A CLI for storing images as three data shards plus parity across storage nodes and recovering them after node loss",
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config.yaml")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("storage-path", "./storage", "Root directory of the fs storage backend and catalog")
	flags.String("storage-backend", config.BackendFS, "Blob storage backend (fs, s3, gcs)")
	flags.String("bucket", "", "Bucket for the s3 and gcs backends, e.g. s3://shards/zraid")
	flags.String("catalog-backend", config.BackendFS, "Object catalog backend (fs, dynamodb)")
	flags.String("dynamodb-table", "zraid-objects", "DynamoDB table of the object catalog")
	flags.String("parity-mode", "raid5", "Default parity mode (raid5, raid6)")
	flags.StringSlice("nodes", []string{"node-1", "node-2", "node-3"}, "Data nodes")
	flags.String("parity-node", "parity", "Node holding parity blocks")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize and migrate the object catalog table",
	Run: func(cmd *cobra.Command, args []string) {
		dynamoDb, err := app.NewDatabase(cmd.Context(), cfg)
		if err != nil {
			fmt.Printf("Failed to connect to the database: %v\n", err)
			return
		}

		if err := dynamoDb.MigrateDb(cmd.Context()); err != nil {
			fmt.Printf("Failed to migrate the database: %v\n", err)
			return
		}

		fmt.Println("Database initialized and migrated successfully")
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back object catalog migrations",
	Run: func(cmd *cobra.Command, args []string) {
		dynamoDb, err := app.NewDatabase(cmd.Context(), cfg)
		if err != nil {
			fmt.Printf("Failed to connect to the database: %v\n", err)
			return
		}

		if err := dynamoDb.MigrateDown(cmd.Context()); err != nil {
			fmt.Printf("Failed to roll back migrations: %v\n", err)
			return
		}

		fmt.Println("Database migrations rolled back successfully")
	},
}

func initConfig() {
	// A missing .env is fine; the environment and config.yaml still apply.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Error loading .env file: %v", err)
	}

	var err error
	cfg, err = config.LoadConfig(configPath, rootCmd)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger(cfg)
}

func storageService(ctx context.Context) (*service.StorageService, error) {
	return app.NewStorageService(ctx, cfg, log.StandardLogger())
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(downCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
