package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace [trial_id]",
	Short: "Print the read-only transcript of a trial",
	Args:  cobra.ExactArgs(1),
	Run:   runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer eng.Close()

	out, err := eng.Guard().GetTrialTrace(ctx, args[0])
	if err != nil {
		slog.Error("Failed to load trace", "trial", args[0], "error", err)
		os.Exit(1)
	}
	fmt.Print(out)
}
