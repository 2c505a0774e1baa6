// CDL Core - Quantum Optics Experiment Backend
//
// This is the main entry point for the CDL Core application. It serves the
// REST API through which researchers submit photonic-cluster experiments,
// lab staff drive them through the queue and administrators record results.
//
// Commands:
//
//	cdlcore serve                 # run the API server (default)
//	cdlcore migrate up|down|status
//	cdlcore user create --email ... --name ... --password ... [--staff] [--admin]
//	cdlcore version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configPath is bound to the persistent --config flag.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "cdlcore",
	Short: "Experiment backend for the photonic quantum computing lab",
	Long: `cdlcore stores quantum-optics experiment submissions, exposes the
staff-facing FIFO queue and records measurement results.

Run without a subcommand to start the API server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"path to the YAML configuration file (env CDL_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Cancel on Ctrl+C and SIGTERM so every command shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}

// getConfigPath returns the configuration file path.
// Uses CDL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CDL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
