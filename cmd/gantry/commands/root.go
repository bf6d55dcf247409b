package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath    string
	inventoryPath []string
	verbose       bool
	jsonOutput    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gantry",
		Short: "Gantry - guest OS resolution and capability dispatch for managed machines",
		Long: `Gantry resolves which OS family a managed machine runs and dispatches
named capabilities through the guest's ancestry chain.

Features:
  - Guest autodetection over SSH, most specific family first
  - Capability dispatch with first-match-wins inheritance
  - CUE inventories with shared defaults and script-defined guests
  - Rego policy gating for disruptive capabilities
  - Detection and capability history in SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringSliceVarP(&inventoryPath, "inventory", "i", []string{"inventory.cue"}, "inventory CUE files or directories")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newDetectCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newMachinesCommand())
	rootCmd.AddCommand(newGuestsCommand())
	rootCmd.AddCommand(newPushCommand())

	return rootCmd
}
