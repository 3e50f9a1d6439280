package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trialworks/benchd/internal/infra/storage"
)

var statusDataset string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of all sessions",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDataset, "dataset", "", "only sessions of this dataset")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer eng.Close()

	sessions, err := eng.Store().ListSessions(ctx, storage.SessionFilter{Dataset: statusDataset})
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SESSION\tPIPELINE\tDATASET\tSTATUS\tCOMPLETED\tTRIALS")

	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\n",
			s.ID, s.PipelineType, s.Dataset, s.Status, s.IsCompleted, s.TrialCount)
	}
	_ = w.Flush()
}
