package runner

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/trialworks/benchd/internal/core/domain"
)

// TraceFormatter renders a trial transcript for display. Rendering is a
// collaborator concern; the engine only assembles the data.
type TraceFormatter interface {
	Format(sess *domain.Session, trial *domain.Trial, evidence []*domain.Justification) (string, error)
}

// GetTrialTrace returns a read-only transcript of one trial.
func (g *Guard) GetTrialTrace(ctx context.Context, trialID string) (string, error) {
	trial, err := g.store.GetTrial(ctx, trialID)
	if err != nil {
		return "", err
	}
	sess, err := g.store.GetSession(ctx, trial.SessionID)
	if err != nil {
		return "", err
	}
	evidence, err := g.store.JustificationsByTrial(ctx, trialID)
	if err != nil {
		return "", err
	}
	return g.formatter.Format(sess, trial, evidence)
}

// TextFormatter is the default plain-text transcript renderer.
type TextFormatter struct{}

func (TextFormatter) Format(sess *domain.Session, trial *domain.Trial, evidence []*domain.Justification) (string, error) {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "session\t%s (%s)\n", sess.ID, sess.PipelineType)
	fmt.Fprintf(w, "trial\t#%d %s\n", trial.NumTrial, trial.ID)
	fmt.Fprintf(w, "status\t%s\n", trial.Status)
	fmt.Fprintf(w, "correct\t%s\n", trial.IsCorrect)
	fmt.Fprintf(w, "started\t%s\n", trial.StartedAt.Format(time.RFC3339))
	if trial.EndedAt != nil {
		fmt.Fprintf(w, "ended\t%s\n", trial.EndedAt.Format(time.RFC3339))
	}
	if trial.Answer != "" {
		fmt.Fprintf(w, "answer\t%s\n", trial.Answer)
	}
	if trial.ErrorMsg != "" {
		fmt.Fprintf(w, "error\t%s\n", trial.ErrorMsg)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}

	if len(evidence) > 0 {
		b.WriteString("evidence:\n")
		for i, j := range evidence {
			fmt.Fprintf(&b, "  [%d] (%s) %s\n", i+1, j.EvidenceType, j.URL)
			if j.Text != "" {
				fmt.Fprintf(&b, "      %s\n", j.Text)
			}
		}
	}
	return b.String(), nil
}
