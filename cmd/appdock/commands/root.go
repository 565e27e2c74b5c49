package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
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
		Use:   "appdock",
		Short: "appdock - local multi-resource application orchestration",
		Long: `appdock orchestrates multi-resource applications on a developer machine:
containers, local executables, and the connection strings that tie them
together.

Features:
  - Declarative resource graph with dependency-derived start order
  - Deferred endpoint and connection string resolution
  - Lifecycle state tracking with live notification streams
  - Aggregated log replay for late watchers
  - Container image build/tag/push pipeline`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "appdock.yaml", "application config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
