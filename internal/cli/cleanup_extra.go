package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trialworks/benchd/internal/engine/sequencer"
	"github.com/trialworks/benchd/internal/infra/storage"
)

var (
	cleanupExtraDryRun  bool
	cleanupExtraDataset string
)

var cleanupExtraCmd = &cobra.Command{
	Use:   "cleanup-extra-trials",
	Short: "Delete trials numbered past a session's first correct answer",
	Long: `Legacy-data migration: once a trial is graded correct, no later trial
should exist. Deletes later trials and relabels the survivors. New data
never needs this; trial creation refuses to extend a correct session.`,
	Run: runCleanupExtra,
}

func init() {
	cleanupExtraCmd.Flags().BoolVar(&cleanupExtraDryRun, "dry-run", false, "preview without writing")
	cleanupExtraCmd.Flags().StringVar(&cleanupExtraDataset, "dataset", "", "only sessions of this dataset")
	rootCmd.AddCommand(cleanupExtraCmd)
}

func runCleanupExtra(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer eng.Close()

	sessions, err := eng.Store().ListSessions(ctx, storage.SessionFilter{Dataset: cleanupExtraDataset})
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		os.Exit(1)
	}

	var rows []sessionRow
	affected, totalDeleted, totalRelabeled := 0, 0, 0

	for _, sess := range sessions {
		trials, err := eng.Store().TrialsBySession(ctx, sess.ID)
		if err != nil {
			slog.Error("Failed to scan session", "session", sess.ID, "error", err)
			continue
		}
		extra := sequencer.ExtraAfterSuccess(trials)
		if len(extra) == 0 {
			continue
		}

		row := sessionRow{
			SessionID: sess.ID,
			Pipeline:  string(sess.PipelineType),
			Action:    "truncate",
			Before:    len(trials),
			After:     len(trials) - len(extra),
			Deleted:   len(extra),
		}

		if cleanupExtraDryRun {
			survivors := trials[:len(trials)-len(extra)]
			row.Relabeled = len(sequencer.Renumbering(survivors))
		} else {
			deleted, relabeled, err := sequencer.TruncateSession(ctx, eng.Store(), sess.ID)
			if err != nil {
				slog.Error("Failed to truncate session", "session", sess.ID, "error", err)
				row.Action = "failed: " + err.Error()
				rows = append(rows, row)
				continue
			}
			row.Deleted = deleted
			row.Relabeled = relabeled
			row.After = row.Before - deleted
		}

		affected++
		totalDeleted += row.Deleted
		totalRelabeled += row.Relabeled
		rows = append(rows, row)
	}

	printSessionRows(rows)
	suffix := ""
	if cleanupExtraDryRun {
		suffix = " (dry run, nothing written)"
	}
	fmt.Printf("\n%d sessions affected; %d trials deleted, %d relabeled%s\n",
		affected, totalDeleted, totalRelabeled, suffix)
}
