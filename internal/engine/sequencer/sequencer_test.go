package sequencer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/infra/storage/memory"
)

func mkTrial(num int, status domain.TrialStatus, correct domain.Correctness) *domain.Trial {
	return &domain.Trial{
		ID:        fmt.Sprintf("trial-%d", num),
		SessionID: "s1",
		NumTrial:  num,
		Status:    status,
		IsCorrect: correct,
		StartedAt: time.Now(),
	}
}

func seedSession(t *testing.T, store *memory.Storage, trials ...*domain.Trial) {
	t.Helper()
	ctx := context.Background()
	err := store.CreateSession(ctx, &domain.Session{
		ID:           "s1",
		PipelineType: domain.PipelineRAG,
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
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestNextNum(t *testing.T) {
	if got := NextNum(nil); got != 1 {
		t.Errorf("empty session: got %d, want 1", got)
	}

	trials := []*domain.Trial{
		mkTrial(1, domain.TrialStatusError, domain.CorrectnessUnknown),
		mkTrial(2, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(3, domain.TrialStatusError, domain.CorrectnessUnknown),
	}
	if got := NextNum(trials); got != 4 {
		t.Errorf("got %d, want 4", got)
	}
}

func TestExtraAfterSuccess(t *testing.T) {
	// Trials 1..5 with trial 3 correct: 4 and 5 are extra.
	trials := []*domain.Trial{
		mkTrial(1, domain.TrialStatusError, domain.CorrectnessUnknown),
		mkTrial(2, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(3, domain.TrialStatusSuccess, domain.CorrectnessCorrect),
		mkTrial(4, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(5, domain.TrialStatusError, domain.CorrectnessUnknown),
	}

	extra := ExtraAfterSuccess(trials)
	if len(extra) != 2 {
		t.Fatalf("got %d extra trials, want 2", len(extra))
	}
	if extra[0].NumTrial != 4 || extra[1].NumTrial != 5 {
		t.Errorf("got trials %d,%d, want 4,5", extra[0].NumTrial, extra[1].NumTrial)
	}

	// No correct trial: nothing to truncate.
	if extra := ExtraAfterSuccess(trials[:2]); len(extra) != 0 {
		t.Errorf("expected no extra trials without a correct one, got %d", len(extra))
	}
}

func TestRenumbering(t *testing.T) {
	// Gaps after deletions: 2,5,9 relabel to 1,2,3.
	trials := []*domain.Trial{
		mkTrial(5, domain.TrialStatusError, domain.CorrectnessUnknown),
		mkTrial(2, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(9, domain.TrialStatusError, domain.CorrectnessUnknown),
	}

	m := Renumbering(trials)
	if len(m) != 3 {
		t.Fatalf("got %d relabels, want 3", len(m))
	}
	want := map[string]int{"trial-2": 1, "trial-5": 2, "trial-9": 3}
	for id, num := range want {
		if m[id] != num {
			t.Errorf("trial %s: got %d, want %d", id, m[id], num)
		}
	}

	// Already contiguous: nothing to relabel.
	contiguous := []*domain.Trial{
		mkTrial(1, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(2, domain.TrialStatusError, domain.CorrectnessUnknown),
	}
	if m := Renumbering(contiguous); len(m) != 0 {
		t.Errorf("contiguous session: got %d relabels, want 0", len(m))
	}
}

func TestVerifyContiguous(t *testing.T) {
	good := []*domain.Trial{
		mkTrial(1, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(2, domain.TrialStatusError, domain.CorrectnessUnknown),
	}
	if err := VerifyContiguous("s1", good); err != nil {
		t.Errorf("contiguous set rejected: %v", err)
	}

	gap := []*domain.Trial{
		mkTrial(1, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(3, domain.TrialStatusError, domain.CorrectnessUnknown),
	}
	var iv *domain.InvariantViolationError
	if err := VerifyContiguous("s1", gap); err == nil {
		t.Error("gap not detected")
	} else if !errors.As(err, &iv) {
		t.Errorf("unexpected error type: %v", err)
	}

	dup := []*domain.Trial{
		mkTrial(2, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		{ID: "other", SessionID: "s1", NumTrial: 2},
	}
	if err := VerifyContiguous("s1", dup); err == nil {
		t.Error("duplicate not detected")
	}
}

func TestTruncateSession(t *testing.T) {
	store := memory.NewStorage()
	seedSession(t, store,
		mkTrial(1, domain.TrialStatusError, domain.CorrectnessUnknown),
		mkTrial(2, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(3, domain.TrialStatusSuccess, domain.CorrectnessCorrect),
		mkTrial(4, domain.TrialStatusSuccess, domain.CorrectnessIncorrect),
		mkTrial(5, domain.TrialStatusError, domain.CorrectnessUnknown),
	)

	ctx := context.Background()
	deleted, relabeled, err := TruncateSession(ctx, store, "s1")
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if relabeled != 0 {
		t.Errorf("relabeled = %d, want 0 (survivors already contiguous)", relabeled)
	}

	trials, err := store.TrialsBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(trials) != 3 {
		t.Fatalf("got %d trials, want 3", len(trials))
	}
	for i, tr := range trials {
		if tr.NumTrial != i+1 {
			t.Errorf("trial %d has num %d", i, tr.NumTrial)
		}
	}
	if err := VerifyContiguous("s1", trials); err != nil {
		t.Errorf("post-state not contiguous: %v", err)
	}

	sess, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.TrialCount != 3 {
		t.Errorf("trial_count = %d, want 3", sess.TrialCount)
	}
}

func TestTruncateSession_NoSuccess(t *testing.T) {
	store := memory.NewStorage()
	seedSession(t, store,
		mkTrial(1, domain.TrialStatusError, domain.CorrectnessUnknown),
		mkTrial(2, domain.TrialStatusError, domain.CorrectnessUnknown),
	)

	deleted, _, err := TruncateSession(context.Background(), store, "s1")
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}
