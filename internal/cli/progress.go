package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/jobview"
)

var (
	progressFile   string
	progressRounds int
	progressRole   string
	progressStatus string
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Print progress and elapsed time for a metrics file",
	Example: `  fedwatch progress --file server_metrics.json --rounds 5
  fedwatch progress --file client.json --rounds 5 --role client --status IN_PROGRESS`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(progressFile)
		if err != nil {
			return fmt.Errorf("failed to read metrics: %w", err)
		}
		role := jobview.HostType(strings.ToLower(progressRole))
		if role != jobview.HostServer && role != jobview.HostClient {
			return fmt.Errorf("unknown role %q", progressRole)
		}
		status := domain.JobStatus(strings.ToUpper(progressStatus))
		if !status.IsKnown() {
			return fmt.Errorf("%w: %s", domain.ErrInvalidStatus, progressStatus)
		}
		return printProgress(cmd, string(raw), progressRounds, status, role)
	},
}

func init() {
	progressCmd.Flags().StringVarP(&progressFile, "file", "f", "", "metrics JSON file")
	progressCmd.Flags().IntVarP(&progressRounds, "rounds", "r", 0, "total number of server rounds")
	progressCmd.Flags().StringVar(&progressRole, "role", string(jobview.HostServer), "server or client")
	progressCmd.Flags().StringVar(&progressStatus, "status", string(domain.JobStatusInProgress), "declared job status")
	_ = progressCmd.MarkFlagRequired("file")
}

func printProgress(cmd *cobra.Command, raw string, rounds int, status domain.JobStatus, role jobview.HostType) error {
	out := cmd.OutOrStdout()

	view := jobview.BuildHostView(raw, rounds, status, role, jobview.SystemClock{})
	if view == nil {
		fmt.Fprintln(out, "No metrics reported yet.")
		return nil
	}
	if view.Error != "" {
		return fmt.Errorf("%s", view.Error)
	}

	if view.Progress != nil {
		info := jobview.Classify(string(view.Progress.EffectiveStatus))
		fmt.Fprintf(out, "Status:   %s\n", info.Label)
		fmt.Fprintf(out, "Progress: %s (round %d of %d)\n", view.Progress.WidthToken, view.Progress.LastCompletedRound, rounds)
	}
	if view.Elapsed != "" {
		fmt.Fprintf(out, "Elapsed:  %s\n", view.Elapsed)
	}
	for _, r := range view.Rounds {
		state := "running"
		if r.Completed {
			state = "done"
		}
		fmt.Fprintf(out, "Round %d: %s", r.Number, state)
		if r.FitElapsed != "" {
			fmt.Fprintf(out, " fit=%s", r.FitElapsed)
		}
		if r.EvalElapsed != "" {
			fmt.Fprintf(out, " eval=%s", r.EvalElapsed)
		}
		fmt.Fprintln(out)
	}
	return nil
}
