// Package anomaly finds trials that violate the session lifecycle:
// trials numbered past the first correct answer, and finished
// non-terminal trials that cite no evidence.
package anomaly

import (
	"context"
	"log/slog"
	"sort"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/engine/metrics"
	"github.com/trialworks/benchd/internal/engine/sequencer"
	"github.com/trialworks/benchd/internal/infra/storage"
)

// Report summarizes a repair pass over one session.
type Report struct {
	Deleted   int
	Relabeled int
}

// Detect returns the ids of anomalous trials: the union of trials
// numbered past the first correct trial and evidence-free non-terminal
// trials, deduplicated and ordered by num_trial. Pure: a preview and a
// repair over the same snapshot return the identical set.
func Detect(trials []*domain.Trial, evidence map[string]int) []string {
	if len(trials) == 0 {
		return nil
	}

	flagged := make(map[string]*domain.Trial)

	for _, t := range sequencer.ExtraAfterSuccess(trials) {
		flagged[t.ID] = t
	}

	maxNum := 0
	for _, t := range trials {
		if t.NumTrial > maxNum {
			maxNum = t.NumTrial
		}
	}
	for _, t := range trials {
		if t.NumTrial == maxNum {
			continue // terminal trial may legitimately be evidence-free
		}
		if evidence[t.ID] == 0 {
			flagged[t.ID] = t
		}
	}

	ordered := make([]*domain.Trial, 0, len(flagged))
	for _, t := range flagged {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].NumTrial < ordered[j].NumTrial })

	ids := make([]string, len(ordered))
	for i, t := range ordered {
		ids[i] = t.ID
	}
	return ids
}

// Detector previews and repairs anomalous trials session by session.
type Detector struct {
	store storage.Store
	log   *slog.Logger
}

// NewDetector creates a new anomaly detector.
func NewDetector(store storage.Store, log *slog.Logger) *Detector {
	return &Detector{store: store, log: log}
}

// Preview returns the trial ids a repair pass would delete, with zero
// mutation and zero locks taken.
func (d *Detector) Preview(ctx context.Context, sessionID string) ([]string, error) {
	trials, err := d.store.TrialsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	evidence, err := d.store.JustificationCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Detect(trials, evidence), nil
}

// Repair deletes the detected trials and reindexes the survivors in one
// transaction. The detection set is recomputed under the session lock,
// so it cannot go stale between preview and delete.
func (d *Detector) Repair(ctx context.Context, sessionID string) (Report, error) {
	uow, err := d.store.Begin(ctx, sessionID)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	trials, err := uow.Trials(ctx)
	if err != nil {
		return Report{}, err
	}
	evidence, err := uow.JustificationCounts(ctx)
	if err != nil {
		return Report{}, err
	}

	ids := Detect(trials, evidence)
	deleted, err := uow.DeleteTrials(ctx, ids)
	if err != nil {
		return Report{}, err
	}

	relabeled, err := sequencer.Reindex(ctx, uow)
	if err != nil {
		return Report{}, err
	}

	if err := uow.Commit(); err != nil {
		return Report{}, err
	}

	if deleted > 0 {
		metrics.TrialsDeleted.WithLabelValues("anomaly").Add(float64(deleted))
		d.log.Info("repaired anomalous trials",
			"session", sessionID, "deleted", deleted, "relabeled", relabeled)
	}
	return Report{Deleted: deleted, Relabeled: relabeled}, nil
}
