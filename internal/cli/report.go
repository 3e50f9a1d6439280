package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/trialworks/benchd/internal/engine/recovery"
)

// sessionRow is one line of a batch command report.
type sessionRow struct {
	SessionID string
	Pipeline  string
	Action    string
	Before    int
	After     int
	Deleted   int
	Relabeled int
}

func printSessionRows(rows []sessionRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "SESSION\tPIPELINE\tACTION\tTRIALS BEFORE\tTRIALS AFTER\tDELETED\tRELABELED")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.SessionID, r.Pipeline, r.Action, r.Before, r.After, r.Deleted, r.Relabeled)
	}
	_ = w.Flush()
}

func printSweepReport(report recovery.SweepReport, dryRun bool) {
	rows := make([]sessionRow, 0, len(report.Sessions))
	for _, sr := range report.Sessions {
		action := string(sr.Class)
		if sr.Err != nil {
			action = "failed: " + sr.Err.Error()
		}
		rows = append(rows, sessionRow{
			SessionID: sr.SessionID,
			Pipeline:  string(sr.Pipeline),
			Action:    action,
			Before:    sr.TrialsBefore,
			After:     sr.TrialsAfter,
			Deleted:   sr.Deleted,
			Relabeled: sr.Relabeled,
		})
	}
	printSessionRows(rows)

	suffix := ""
	if dryRun {
		suffix = " (dry run, nothing written)"
	}
	fmt.Printf("\n%d candidate sessions: %d reset, %d permanent, %d failed; %d trials deleted, %d relabeled%s\n",
		report.Candidates, report.Reset, report.Permanent, report.Failures,
		report.Deleted, report.Relabeled, suffix)
}
