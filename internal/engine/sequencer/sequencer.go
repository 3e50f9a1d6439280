// Package sequencer owns the num_trial ordering within a session:
// assigning the next index, truncating trials past the first correct
// answer, and relabeling survivors to a contiguous 1..N after deletions.
//
// The pure helpers operate on trial snapshots so preview (dry-run) paths
// share selection logic with the mutating paths, which compose into a
// caller-provided unit of work.
package sequencer

import (
	"context"
	"fmt"
	"sort"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/infra/storage"
)

// NextNum returns the next num_trial for the session: max+1, or 1 when
// the session has no trials.
func NextNum(trials []*domain.Trial) int {
	max := 0
	for _, t := range trials {
		if t.NumTrial > max {
			max = t.NumTrial
		}
	}
	return max + 1
}

// FirstCorrect returns the lowest-numbered trial graded correct, or nil.
func FirstCorrect(trials []*domain.Trial) *domain.Trial {
	var first *domain.Trial
	for _, t := range trials {
		if t.IsCorrect != domain.CorrectnessCorrect {
			continue
		}
		if first == nil || t.NumTrial < first.NumTrial {
			first = t
		}
	}
	return first
}

// ExtraAfterSuccess returns the trials numbered strictly greater than
// the first correct trial, ordered by num_trial. Empty when no correct
// trial exists.
func ExtraAfterSuccess(trials []*domain.Trial) []*domain.Trial {
	first := FirstCorrect(trials)
	if first == nil {
		return nil
	}
	var extra []*domain.Trial
	for _, t := range trials {
		if t.NumTrial > first.NumTrial {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].NumTrial < extra[j].NumTrial })
	return extra
}

// Renumbering maps trial id -> new num_trial so that the trials,
// preserving their relative order, are labeled 1..N. Trials already
// carrying their target number are omitted.
func Renumbering(trials []*domain.Trial) map[string]int {
	ordered := make([]*domain.Trial, len(trials))
	copy(ordered, trials)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].NumTrial < ordered[j].NumTrial })

	m := make(map[string]int)
	for i, t := range ordered {
		if want := i + 1; t.NumTrial != want {
			m[t.ID] = want
		}
	}
	return m
}

// VerifyContiguous checks that num_trial values form the contiguous
// set {1..N} with no gaps or duplicates.
func VerifyContiguous(sessionID string, trials []*domain.Trial) error {
	seen := make(map[int]bool, len(trials))
	for _, t := range trials {
		if t.NumTrial < 1 || t.NumTrial > len(trials) {
			return &domain.InvariantViolationError{
				SessionID: sessionID,
				Rule:      "contiguity",
				Detail:    fmt.Sprintf("num_trial %d out of range 1..%d", t.NumTrial, len(trials)),
			}
		}
		if seen[t.NumTrial] {
			return &domain.InvariantViolationError{
				SessionID: sessionID,
				Rule:      "contiguity",
				Detail:    fmt.Sprintf("duplicate num_trial %d", t.NumTrial),
			}
		}
		seen[t.NumTrial] = true
	}
	return nil
}

// AssignNext returns the next num_trial inside the given transaction, so
// two concurrent callers can never compute the same value.
func AssignNext(ctx context.Context, uow storage.UnitOfWork) (int, error) {
	trials, err := uow.Trials(ctx)
	if err != nil {
		return 0, err
	}
	return NextNum(trials), nil
}

// TruncateAfterSuccess deletes every trial numbered strictly greater
// than the first correct trial. No-op when no correct trial exists.
// Returns the number of trials deleted.
func TruncateAfterSuccess(ctx context.Context, uow storage.UnitOfWork) (int, error) {
	trials, err := uow.Trials(ctx)
	if err != nil {
		return 0, err
	}
	extra := ExtraAfterSuccess(trials)
	if len(extra) == 0 {
		return 0, nil
	}
	ids := make([]string, len(extra))
	for i, t := range extra {
		ids[i] = t.ID
	}
	return uow.DeleteTrials(ctx, ids)
}

// TruncateSession runs TruncateAfterSuccess followed by Reindex for one
// session in its own transaction. Legacy-data path: BeginTrial already
// refuses new trials once a correct answer exists.
func TruncateSession(ctx context.Context, store storage.Store, sessionID string) (deleted, relabeled int, err error) {
	uow, err := store.Begin(ctx, sessionID)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	deleted, err = TruncateAfterSuccess(ctx, uow)
	if err != nil {
		return 0, 0, err
	}
	relabeled, err = Reindex(ctx, uow)
	if err != nil {
		return 0, 0, err
	}
	if err := uow.Commit(); err != nil {
		return 0, 0, err
	}
	return deleted, relabeled, nil
}

// Reindex relabels the surviving trials to 1..N, preserving relative
// order, and refreshes the session's trial counter. Contiguity is
// verified before the transaction may commit. Returns the number of
// trials relabeled.
func Reindex(ctx context.Context, uow storage.UnitOfWork) (int, error) {
	trials, err := uow.Trials(ctx)
	if err != nil {
		return 0, err
	}

	renumbering := Renumbering(trials)
	if err := uow.RenumberTrials(ctx, renumbering); err != nil {
		return 0, err
	}

	trials, err = uow.Trials(ctx)
	if err != nil {
		return 0, err
	}
	sess := uow.Session()
	if err := VerifyContiguous(sess.ID, trials); err != nil {
		return 0, err
	}

	sess.TrialCount = len(trials)
	if err := uow.UpdateSession(ctx, sess); err != nil {
		return 0, err
	}
	return len(renumbering), nil
}
