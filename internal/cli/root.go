package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:          "fedwatch",
	Short:        "Dashboard for monitoring federated learning jobs",
	Long:         `Serves the job dashboard API and offers offline helpers to inspect metrics files.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, progressCmd, durationCmd)
}
