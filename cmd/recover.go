package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zraid/internal/app"
	"github.com/zzenonn/zraid/internal/service"
)

var recoverCmd = &cobra.Command{
	Use:   "recover [node...]",
	Short: "Rebuild every blob held by the given nodes",
	Long:  "Admits the nodes for recovery, at most max_concurrent_recoveries at a time, and waits until all of them are done",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := storageService(cmd.Context())
		if err != nil {
			fmt.Printf("Error initializing storage: %v\n", err)
			return
		}
		client, err := app.NewClusterClient(cfg)
		if err != nil {
			fmt.Printf("Error connecting to the cluster: %v\n", err)
			return
		}

		o := app.NewOrchestrator(cfg, client, svc, nil, log.StandardLogger())
		o.Start(cmd.Context())
		defer o.Stop()

		for _, node := range args {
			state, err := o.RequestRecovery(node)
			if err != nil {
				fmt.Printf("Error requesting recovery of %s: %v\n", node, err)
				return
			}
			fmt.Printf("Recovery of %s: %s\n", node, state)
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := o.WaitIdle(ctx); err != nil {
			fmt.Printf("Error waiting for recovery: %v\n", err)
			return
		}

		for _, node := range args {
			fmt.Printf("%s\t%s\n", node, o.State(node))
		}
	},
}

var testImagesCmd = &cobra.Command{
	Use:   "test-images [dir]",
	Short: "Simulate shard loss on every image of a directory and check recovery",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := cfg.ImageDir
		if len(args) == 1 {
			dir = args[0]
		}
		quiet, _ := cmd.Flags().GetBool("quiet")
		outputDir, _ := cmd.Flags().GetString("output")
		if outputDir == "" {
			outputDir = cfg.OutputDir
		}

		tester := service.NewRAIDTester(outputDir, cfg.SimilarityThreshold, quiet, log.StandardLogger())
		results, err := tester.RunTests(cmd.Context(), dir)
		if err != nil {
			fmt.Printf("Error running tests: %v\n", err)
			return
		}

		fmt.Printf("RAID5: %d passed, %d failed\n", results.RAID5.Success, results.RAID5.Failed)
		fmt.Printf("RAID6: %d passed, %d failed\n", results.RAID6.Success, results.RAID6.Failed)

		publish, _ := cmd.Flags().GetString("publish")
		if publish == "" {
			return
		}
		repo, prefix, err := app.NewObjectRepository(cmd.Context(), publish)
		if err != nil {
			fmt.Printf("Error opening bucket: %v\n", err)
			return
		}
		keys, err := service.NewResultsPublisher(repo, prefix, log.StandardLogger()).PublishResults(cmd.Context(), results, outputDir, quiet)
		if err != nil {
			fmt.Printf("Error publishing results: %v\n", err)
			return
		}
		fmt.Printf("Results published to %s (%d files)\n", publish, len(keys))
	},
}

func init() {
	recoverCmd.Flags().Duration("timeout", 30*time.Minute, "How long to wait for all recoveries")
	testImagesCmd.Flags().BoolP("quiet", "q", false, "Suppress progress bars")
	testImagesCmd.Flags().String("output", "", "Directory for recovered images; defaults to output_dir")
	testImagesCmd.Flags().String("publish", "", "Bucket URI to upload results to, e.g. s3://results/run-1")
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(testImagesCmd)
}
