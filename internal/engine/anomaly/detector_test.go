package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/infra/storage/memory"
)

func mkTrial(num int, correct domain.Correctness) *domain.Trial {
	return &domain.Trial{
		ID:        fmt.Sprintf("trial-%d", num),
		SessionID: "s1",
		NumTrial:  num,
		Status:    domain.TrialStatusSuccess,
		IsCorrect: correct,
		StartedAt: time.Now(),
	}
}

func mkEvidence(trialID string, n int) []*domain.Justification {
	js := make([]*domain.Justification, n)
	for i := range js {
		js[i] = &domain.Justification{
			ID:           fmt.Sprintf("%s-ev-%d", trialID, i),
			TrialID:      trialID,
			URL:          "https://example.com",
			Text:         "supporting passage",
			EvidenceType: domain.EvidenceWebPage,
			CreatedAt:    time.Now(),
		}
	}
	return js
}

func seed(t *testing.T, store *memory.Storage, trials []*domain.Trial, evidence map[string]int) {
	t.Helper()
	ctx := context.Background()
	err := store.CreateSession(ctx, &domain.Session{
		ID:           "s1",
		PipelineType: domain.PipelineVanillaAgent,
		Status:       domain.SessionStatusPending,
		TrialCount:   len(trials),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	uow, err := store.Begin(ctx, "s1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, tr := range trials {
		if err := uow.InsertTrial(ctx, tr); err != nil {
			t.Fatalf("insert trial: %v", err)
		}
		if n := evidence[tr.ID]; n > 0 {
			if err := uow.InsertJustifications(ctx, mkEvidence(tr.ID, n)); err != nil {
				t.Fatalf("insert evidence: %v", err)
			}
		}
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestDetect_PostSuccess(t *testing.T) {
	trials := []*domain.Trial{
		mkTrial(1, domain.CorrectnessIncorrect),
		mkTrial(2, domain.CorrectnessCorrect),
		mkTrial(3, domain.CorrectnessIncorrect),
		mkTrial(4, domain.CorrectnessUnknown),
	}
	evidence := map[string]int{"trial-1": 1, "trial-2": 1, "trial-3": 1, "trial-4": 1}

	ids := Detect(trials, evidence)
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	if ids[0] != "trial-3" || ids[1] != "trial-4" {
		t.Errorf("got %v, want [trial-3 trial-4]", ids)
	}
}

func TestDetect_EvidenceFreeNonTerminal(t *testing.T) {
	trials := []*domain.Trial{
		mkTrial(1, domain.CorrectnessIncorrect),
		mkTrial(2, domain.CorrectnessIncorrect),
		mkTrial(3, domain.CorrectnessIncorrect),
	}
	// Trial 1 has no evidence; trial 3 is terminal so its lack of
	// evidence is tolerated.
	evidence := map[string]int{"trial-1": 0, "trial-2": 2, "trial-3": 0}

	ids := Detect(trials, evidence)
	if len(ids) != 1 || ids[0] != "trial-1" {
		t.Errorf("got %v, want [trial-1]", ids)
	}
}

func TestDetect_Deduplicates(t *testing.T) {
	// Trial 3 is both post-success and evidence-free: flagged once.
	trials := []*domain.Trial{
		mkTrial(1, domain.CorrectnessIncorrect),
		mkTrial(2, domain.CorrectnessCorrect),
		mkTrial(3, domain.CorrectnessIncorrect),
		mkTrial(4, domain.CorrectnessIncorrect),
	}
	evidence := map[string]int{"trial-1": 1, "trial-2": 1, "trial-3": 0, "trial-4": 1}

	ids := Detect(trials, evidence)
	if len(ids) != 2 {
		t.Fatalf("got %v, want exactly [trial-3 trial-4]", ids)
	}
}

func TestDetect_Empty(t *testing.T) {
	if ids := Detect(nil, nil); len(ids) != 0 {
		t.Errorf("empty session flagged: %v", ids)
	}
}

func TestPreviewMatchesRepair(t *testing.T) {
	trials := []*domain.Trial{
		mkTrial(1, domain.CorrectnessIncorrect),
		mkTrial(2, domain.CorrectnessCorrect),
		mkTrial(3, domain.CorrectnessIncorrect),
	}
	evidence := map[string]int{"trial-1": 0, "trial-2": 1, "trial-3": 1}

	store := memory.NewStorage()
	seed(t, store, trials, evidence)
	d := NewDetector(store, slog.Default())
	ctx := context.Background()

	preview, err := d.Preview(ctx, "s1")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	// Preview must not have written anything.
	after, err := store.TrialsBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(after) != 3 {
		t.Fatalf("preview mutated the session: %d trials left", len(after))
	}

	report, err := d.Repair(ctx, "s1")
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Deleted != len(preview) {
		t.Errorf("repair deleted %d, preview promised %d", report.Deleted, len(preview))
	}

	survivors, err := store.TrialsBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(survivors) != 3-len(preview) {
		t.Fatalf("got %d survivors, want %d", len(survivors), 3-len(preview))
	}
	for i, tr := range survivors {
		if tr.NumTrial != i+1 {
			t.Errorf("survivor %d has num %d", i, tr.NumTrial)
		}
	}
}

func TestRepair_CleanSessionIsNoop(t *testing.T) {
	trials := []*domain.Trial{
		mkTrial(1, domain.CorrectnessIncorrect),
		mkTrial(2, domain.CorrectnessIncorrect),
	}
	evidence := map[string]int{"trial-1": 1, "trial-2": 1}

	store := memory.NewStorage()
	seed(t, store, trials, evidence)
	d := NewDetector(store, slog.Default())

	report, err := d.Repair(context.Background(), "s1")
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Deleted != 0 || report.Relabeled != 0 {
		t.Errorf("clean session modified: %+v", report)
	}
}
