// Package main is the entry point for the telemd CLI.
//
// telemd bridges a live flight telemetry source to many concurrent
// consumers: REST snapshots and a filterable WebSocket stream off one shared
// in-memory store.
//
// Usage:
//
//	telemd serve -c config.yaml    # Start the telemetry service
//	telemd validate -c config.yaml # Validate configuration
//	telemd version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "telemd",
	Short: "Real-time drone telemetry service",
	Long: `telemd is a real-time drone telemetry service.

It ingests live telemetry from a flight stack (or a local bridge process)
into a shared in-memory store and serves it to any number of clients via
REST snapshots and a per-client filterable WebSocket stream.

Quick start:
  1. Create a config file (telemd.yaml)
  2. Run: telemd serve -c telemd.yaml
  3. Open http://localhost:8080/docs in your browser

Example config:
  port: 8080
  backend: sim
  push_rate_hz: 10`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this telemd binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("telemd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
