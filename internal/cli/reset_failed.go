package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var resetFailedDryRun bool

var resetFailedCmd = &cobra.Command{
	Use:   "reset-failed-sessions",
	Short: "Classify errored sessions and reset the retryable ones",
	Long: `Selects sessions that are not completed and carry at least one errored
trial. Retryable sessions are reset per pipeline policy; sessions with a
permanent failure (context exhaustion) are closed for good.`,
	Run: runResetFailed,
}

func init() {
	resetFailedCmd.Flags().BoolVar(&resetFailedDryRun, "dry-run", false, "preview without writing")
	rootCmd.AddCommand(resetFailedCmd)
}

func runResetFailed(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer eng.Close()

	report, err := eng.Scheduler().Sweep(ctx, resetFailedDryRun)
	if err != nil {
		slog.Error("Sweep failed", "error", err)
		os.Exit(1)
	}
	printSweepReport(report, resetFailedDryRun)
}
