package cli

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/engine/classifier"
	"github.com/trialworks/benchd/internal/engine/recovery"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	_ = w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(out)
}

func TestPrintSessionRows(t *testing.T) {
	out := captureStdout(t, func() {
		printSessionRows([]sessionRow{
			{SessionID: "s1", Pipeline: "rag", Action: "truncate", Before: 5, After: 3, Deleted: 2, Relabeled: 0},
			{SessionID: "s2", Pipeline: "browser_agent", Action: "failed: locked", Before: 4, After: 4},
		})
	})

	for _, want := range []string{"SESSION", "TRIALS BEFORE", "s1", "truncate", "failed: locked"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Errorf("got %d lines, want header + 2 rows", lines)
	}
}

func TestPrintSweepReport(t *testing.T) {
	report := recovery.SweepReport{
		Candidates: 3,
		Reset:      1,
		Permanent:  1,
		Failures:   1,
		Deleted:    2,
		Relabeled:  1,
		Sessions: []recovery.SessionReport{
			{SessionID: "a", Pipeline: domain.PipelineRAG, Class: classifier.Retryable, TrialsBefore: 3, TrialsAfter: 1, Deleted: 2, Relabeled: 1},
			{SessionID: "b", Pipeline: domain.PipelineVanillaLLM, Class: classifier.Permanent, TrialsBefore: 2, TrialsAfter: 2},
			{SessionID: "c", Pipeline: domain.PipelineRAG, Err: errors.New("boom")},
		},
	}

	out := captureStdout(t, func() { printSweepReport(report, false) })
	for _, want := range []string{"retryable", "permanent", "failed: boom", "3 candidate sessions: 1 reset, 1 permanent, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dry run") {
		t.Errorf("non-dry-run output mentions dry run:\n%s", out)
	}

	out = captureStdout(t, func() { printSweepReport(report, true) })
	if !strings.Contains(out, "(dry run, nothing written)") {
		t.Errorf("dry-run suffix missing:\n%s", out)
	}
}
