package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildwave/buildwave/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buildwave",
		Short: "buildwave - wave-scheduled source build orchestrator",
		Long: `buildwave turns a package set and its dependency edges into a wave
schedule and drives containerized builds through it.

Features:
  - Deterministic dependency graph with critical-path scoring
  - Kahn wave partition with documented cycle fallback
  - Parallel, retrying, resumable build execution
  - OPA policy gate over the package set
  - SQLite run history`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "buildwave.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// newCLILogger builds the logger commands share, honoring --verbose.
func newCLILogger() (*telemetry.Logger, error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	format := "console"
	if jsonOutput {
		format = "json"
	}
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  level,
		Format: format,
		Output: "stderr",
	})
}
