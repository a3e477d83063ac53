package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zzenonn/zraid/internal/api"
	"github.com/zzenonn/zraid/internal/app"
	"github.com/zzenonn/zraid/internal/config"
	"github.com/zzenonn/zraid/internal/logging"
	"github.com/zzenonn/zraid/internal/metrics"
	"github.com/zzenonn/zraid/internal/monitor"
)

const shutdownTimeout = 10 * time.Second

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "zraid-server",
	Short: "Storage node health monitor and recovery orchestrator",
	Long:  "Watches storage nodes, admits failed ones for recovery and rebuilds their blobs from the surviving shards and parity",
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config.yaml")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("storage-path", "./storage", "Root directory of the fs storage backend and catalog")
	flags.String("storage-backend", config.BackendFS, "Blob storage backend (fs, s3, gcs)")
	flags.String("bucket", "", "Bucket for the s3 and gcs backends")
	flags.String("catalog-backend", config.BackendFS, "Object catalog backend (fs, dynamodb)")
	flags.String("cluster", config.ClusterSimulated, "Cluster backend (simulated, kubernetes)")
	flags.String("kubeconfig", "", "Path to kubeconfig; in-cluster config when empty")
	flags.String("metrics-addr", ":8000", "Listen address of the metrics and API server")
	flags.Int("max-concurrent-recoveries", 1, "Node recoveries allowed to run at once")
	flags.Duration("monitor-interval", 30*time.Second, "Interval between node health checks")
	flags.String("namespace", "cloud-storage", "Namespace of the storage pods whose health is reported")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the health monitor, recovery orchestrator and HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := serve(ctx); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
		log.Info("Server stopped")
	},
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

func serve(ctx context.Context) error {
	logger := logging.NewLogger(cfg)

	svc, err := app.NewStorageService(ctx, cfg, logger.WithField("component", "storage"))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	client, err := app.NewClusterClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to the cluster: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(registry)

	orch := app.NewOrchestrator(cfg, client, svc, recorder, logger.WithField("component", "orchestrator"))
	orch.Start(ctx)
	defer orch.Stop()

	healthMonitor := monitor.NewHealthMonitor(client, orch, cfg.WorkerLabel, cfg.MonitorInterval, cfg.MaxFailures,
		recorder, logger.WithField("component", "monitor"))
	healthMonitor.WatchNamespace(cfg.Namespace)

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           api.NewHandler(orch, healthMonitor, registry, logger.WithField("component", "api")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		healthMonitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Infof("Serving metrics and API on %s", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func initConfig() {
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

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
