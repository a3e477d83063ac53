package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zzenonn/zraid/internal/domain"
	"github.com/zzenonn/zraid/internal/service"
)

var putCmd = &cobra.Command{
	Use:   "put [image-path] [name]",
	Short: "Split an image into shards and parity and store it",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		imagePath := args[0]
		name := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
		if len(args) == 2 {
			name = args[1]
		}

		mode := cfg.ParityMode
		if m, _ := cmd.Flags().GetString("mode"); m != "" {
			mode = domain.ParityMode(m)
		}

		file, err := os.Open(imagePath)
		if err != nil {
			fmt.Printf("Error opening file: %v\n", err)
			return
		}
		defer file.Close()

		obj, err := service.DecodeImage(file)
		if err != nil {
			fmt.Printf("Error decoding image: %v\n", err)
			return
		}

		svc, err := storageService(cmd.Context())
		if err != nil {
			fmt.Printf("Error initializing storage: %v\n", err)
			return
		}
		metadata, err := svc.PutObject(cmd.Context(), name, obj, mode)
		if err != nil {
			fmt.Printf("Error storing object: %v\n", err)
			return
		}

		fmt.Printf("Object stored successfully: %s -> %s (%s)\n", imagePath, name, metadata.ParityMode)
		for _, role := range metadata.ParityMode.Roles() {
			fmt.Printf("  %-2s %s\n", role, metadata.Placement[role])
		}
	},
}

var getCmd = &cobra.Command{
	Use:   "get [name] [output-path]",
	Short: "Reassemble a stored object, recovering lost shards from parity",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		name, outputPath := args[0], args[1]

		svc, err := storageService(cmd.Context())
		if err != nil {
			fmt.Printf("Error initializing storage: %v\n", err)
			return
		}
		obj, err := svc.GetObject(cmd.Context(), name)
		if err != nil {
			fmt.Printf("Error reading object: %v\n", err)
			return
		}

		// If output path is a directory, name the file after the object
		if stat, err := os.Stat(outputPath); err == nil && stat.IsDir() {
			outputPath = filepath.Join(outputPath, name+".png")
		}

		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			fmt.Printf("Error creating output directory: %v\n", err)
			return
		}

		outFile, err := os.Create(outputPath)
		if err != nil {
			fmt.Printf("Error creating output file: %v\n", err)
			return
		}
		defer outFile.Close()

		if err := service.EncodePNG(outFile, obj); err != nil {
			fmt.Printf("Error writing file: %v\n", err)
			return
		}

		fmt.Printf("Object read successfully: %s -> %s\n", name, outputPath)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete an object and all of its blobs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		svc, err := storageService(cmd.Context())
		if err != nil {
			fmt.Printf("Error initializing storage: %v\n", err)
			return
		}
		if err := svc.DeleteObject(cmd.Context(), name); err != nil {
			fmt.Printf("Error deleting object: %v\n", err)
			return
		}
		fmt.Printf("Object deleted successfully: %s\n", name)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored objects",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := storageService(cmd.Context())
		if err != nil {
			fmt.Printf("Error initializing storage: %v\n", err)
			return
		}
		objects, err := svc.ListObjects(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing objects: %v\n", err)
			return
		}

		for _, m := range objects {
			nodes := make([]string, 0, len(m.Placement))
			for _, role := range m.ParityMode.Roles() {
				nodes = append(nodes, fmt.Sprintf("%s=%s", role, m.Placement[role]))
			}
			fmt.Printf("%s\t%dx%dx%d\t%s\t%s\n", m.Name, m.Shape.Height, m.Shape.Width, m.Shape.Channels, m.ParityMode, strings.Join(nodes, ","))
		}
	},
}

func init() {
	putCmd.Flags().String("mode", "", "Parity mode for this object (raid5, raid6); defaults to parity_mode")
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
}
