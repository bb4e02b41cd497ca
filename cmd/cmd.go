// Package cmd wires the slipway subcommands together.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"slipway/pkg/logger"
)

var (
	storeDir   string
	catalogDir string
	runDir     string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "slipway",
	Short: "Build and serve containerised Python dashboards from a declarative recipe",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetDebug(debug)
		// A .env beside the binary is optional; missing files are fine.
		godotenv.Load(".env")
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(rmiCmd)
	rootCmd.AddCommand(doctorCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

// dataDir resolves the slipway state directory, ~/.slipway by default.
func dataDir(sub string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".slipway", sub)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDir, "store", dataDir("store"), "Directory holding built images and layer blobs")
	rootCmd.PersistentFlags().StringVar(&catalogDir, "catalog", dataDir("catalog"), "Directory holding base image tarballs")
	rootCmd.PersistentFlags().StringVar(&runDir, "run-dir", dataDir("run"), "Directory holding materialised container root filesystems")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
