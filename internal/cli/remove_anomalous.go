package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/engine/sequencer"
	"github.com/trialworks/benchd/internal/infra/storage"
)

var removeAnomalousDryRun bool

var removeAnomalousCmd = &cobra.Command{
	Use:   "remove-anomalous-trials",
	Short: "Delete trials that violate the session lifecycle",
	Long: `Finds trials numbered past a session's first correct answer, and
finished non-terminal trials citing no evidence, then deletes them and
relabels the survivors to a contiguous 1..N.`,
	Run: runRemoveAnomalous,
}

func init() {
	removeAnomalousCmd.Flags().BoolVar(&removeAnomalousDryRun, "dry-run", false, "preview without writing")
	rootCmd.AddCommand(removeAnomalousCmd)
}

func runRemoveAnomalous(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer eng.Close()

	sessions, err := eng.Store().ListSessions(ctx, storage.SessionFilter{})
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		os.Exit(1)
	}

	var rows []sessionRow
	affected, totalDeleted, totalRelabeled := 0, 0, 0

	for _, sess := range sessions {
		ids, err := eng.Detector().Preview(ctx, sess.ID)
		if err != nil {
			slog.Error("Failed to scan session", "session", sess.ID, "error", err)
			continue
		}
		if len(ids) == 0 {
			continue
		}

		row := sessionRow{
			SessionID: sess.ID,
			Pipeline:  string(sess.PipelineType),
			Action:    "repair",
			Before:    sess.TrialCount,
			After:     sess.TrialCount - len(ids),
			Deleted:   len(ids),
		}

		if removeAnomalousDryRun {
			trials, err := eng.Store().TrialsBySession(ctx, sess.ID)
			if err == nil {
				victims := make(map[string]bool, len(ids))
				for _, id := range ids {
					victims[id] = true
				}
				var survivors []*domain.Trial
				for _, t := range trials {
					if !victims[t.ID] {
						survivors = append(survivors, t)
					}
				}
				row.Before = len(trials)
				row.After = len(survivors)
				row.Relabeled = len(sequencer.Renumbering(survivors))
			}
		} else {
			report, err := eng.Detector().Repair(ctx, sess.ID)
			if err != nil {
				slog.Error("Failed to repair session", "session", sess.ID, "error", err)
				row.Action = "failed: " + err.Error()
				rows = append(rows, row)
				continue
			}
			row.Deleted = report.Deleted
			row.Relabeled = report.Relabeled
			row.After = row.Before - report.Deleted
		}

		affected++
		totalDeleted += row.Deleted
		totalRelabeled += row.Relabeled
		rows = append(rows, row)
	}

	printSessionRows(rows)
	suffix := ""
	if removeAnomalousDryRun {
		suffix = " (dry run, nothing written)"
	}
	fmt.Printf("\n%d sessions affected; %d trials deleted, %d relabeled%s\n",
		affected, totalDeleted, totalRelabeled, suffix)
}
