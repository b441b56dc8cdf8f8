// Package commands implements CLI command handlers for shcov.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/shcov/pkg/version"
)

const (
	flagConfig  = "config"
	flagVerbose = "verbose"
)

// NewRootCommand assembles the shcov command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shcov",
		Short: "Line coverage for shell scripts",
		Long: `shcov runs shell scripts under xtrace and records how often each
source line executes.

Commands:
  run       Trace a script and update the coverage data file
  report    Render a coverage data file
  merge     Combine coverage data files`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(flagConfig, "", "Config file (default: .shcov.yaml in CWD or $HOME)")
	rootCmd.PersistentFlags().BoolP(flagVerbose, "v", false, "Debug logging on stderr")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewReportCommand())
	rootCmd.AddCommand(NewMergeCommand())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shcov %s\n", version.String())
		},
	}
}

// toolName identifies the writer in saved coverage documents.
func toolName() string {
	return "shcov " + version.Version
}
