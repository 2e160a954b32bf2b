package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fedwatch.dashboard/internal/core/jobview"
)

var durationCmd = &cobra.Command{
	Use:   "duration <milliseconds>",
	Short: "Format a millisecond count the way the dashboard shows it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), jobview.FormatDuration(ms))
		return nil
	},
}
