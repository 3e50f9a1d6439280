// Package recovery selects stuck sessions, classifies their failures,
// and applies the pipeline-specific reset policy.
package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/engine/classifier"
	"github.com/trialworks/benchd/internal/engine/metrics"
	"github.com/trialworks/benchd/internal/engine/sequencer"
	"github.com/trialworks/benchd/internal/infra/storage"
)

// SessionReport records the recovery decision and effect for one session.
type SessionReport struct {
	SessionID    string
	Pipeline     domain.PipelineType
	Class        classifier.Class
	TrialsBefore int
	TrialsAfter  int
	Deleted      int
	Relabeled    int
	Err          error
}

// SweepReport aggregates one recovery pass.
type SweepReport struct {
	Candidates int
	Reset      int
	Permanent  int
	Deleted    int
	Relabeled  int
	Failures   int
	Sessions   []SessionReport
}

// Scheduler runs the recovery policy: retryable sessions are reset for
// another attempt, permanent ones are closed for good.
type Scheduler struct {
	store storage.Store
	log   *slog.Logger
}

// NewScheduler creates a new recovery scheduler.
func NewScheduler(store storage.Store, log *slog.Logger) *Scheduler {
	return &Scheduler{store: store, log: log}
}

// SelectCandidates returns sessions eligible for recovery: not yet
// completed and carrying at least one errored trial.
func (s *Scheduler) SelectCandidates(ctx context.Context) ([]*domain.Session, error) {
	notCompleted := false
	return s.store.ListSessions(ctx, storage.SessionFilter{
		IsCompleted:   &notCompleted,
		HasErrorTrial: true,
	})
}

// ClassifySession is conservative: if any errored trial carries a
// permanent failure message, the whole session is permanent: the
// poisoning condition persists across the session's accumulated state.
func ClassifySession(trials []*domain.Trial) classifier.Class {
	for _, t := range trials {
		if t.Status != domain.TrialStatusError {
			continue
		}
		if classifier.Classify(t.ErrorMsg) == classifier.Permanent {
			return classifier.Permanent
		}
	}
	return classifier.Retryable
}

// resetVictims returns the trials ApplyReset would delete for the given
// pipeline: everything for browser agents (their context accumulates
// turn over turn, so partial repair would leave an inconsistent
// conversation), only errored trials for everything else.
func resetVictims(pipeline domain.PipelineType, trials []*domain.Trial) []string {
	var ids []string
	for _, t := range trials {
		if pipeline == domain.PipelineBrowserAgent || t.Status == domain.TrialStatusError {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// ApplyReset deletes the pipeline-specific victim set, reindexes the
// survivors, and sets the session back to pending, all in one
// transaction. A session with no errored trials is left untouched.
func (s *Scheduler) ApplyReset(ctx context.Context, sessionID string) (SessionReport, error) {
	uow, err := s.store.Begin(ctx, sessionID)
	if err != nil {
		return SessionReport{SessionID: sessionID}, err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	sess := uow.Session()
	trials, err := uow.Trials(ctx)
	if err != nil {
		return SessionReport{SessionID: sessionID}, err
	}

	report := SessionReport{
		SessionID:    sessionID,
		Pipeline:     sess.PipelineType,
		Class:        classifier.Retryable,
		TrialsBefore: len(trials),
		TrialsAfter:  len(trials),
	}

	hasError := false
	for _, t := range trials {
		if t.Status == domain.TrialStatusError {
			hasError = true
			break
		}
	}
	if !hasError {
		return report, nil // idempotent: nothing to reset
	}

	deleted, err := uow.DeleteTrials(ctx, resetVictims(sess.PipelineType, trials))
	if err != nil {
		return report, err
	}
	relabeled, err := sequencer.Reindex(ctx, uow)
	if err != nil {
		return report, err
	}

	sess.Status = domain.SessionStatusPending
	sess.IsCompleted = false
	if err := uow.UpdateSession(ctx, sess); err != nil {
		return report, err
	}
	if err := uow.Commit(); err != nil {
		return report, err
	}

	report.Deleted = deleted
	report.Relabeled = relabeled
	report.TrialsAfter = report.TrialsBefore - deleted

	metrics.SessionsReset.WithLabelValues(string(sess.PipelineType)).Inc()
	metrics.TrialsDeleted.WithLabelValues("reset").Add(float64(deleted))
	s.log.Info("reset session for retry",
		"session", sessionID, "pipeline", sess.PipelineType,
		"deleted", deleted, "remaining", report.TrialsAfter)
	return report, nil
}

// ApplyPermanent closes the session terminally: status=error,
// is_completed=true. No trials are deleted. Future sweeps skip it.
func (s *Scheduler) ApplyPermanent(ctx context.Context, sessionID string) error {
	uow, err := s.store.Begin(ctx, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	sess := uow.Session()
	if sess.Terminal() {
		return nil // already closed
	}
	sess.Status = domain.SessionStatusError
	sess.IsCompleted = true
	if err := uow.UpdateSession(ctx, sess); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	metrics.SessionsPermanent.Inc()
	s.log.Warn("session closed as permanently failed", "session", sessionID)
	return nil
}

// RecoverSession classifies one session and applies the matching policy.
func (s *Scheduler) RecoverSession(ctx context.Context, sessionID string) (SessionReport, error) {
	trials, err := s.store.TrialsBySession(ctx, sessionID)
	if err != nil {
		return SessionReport{SessionID: sessionID}, err
	}

	if ClassifySession(trials) == classifier.Permanent {
		report := SessionReport{
			SessionID:    sessionID,
			Class:        classifier.Permanent,
			TrialsBefore: len(trials),
			TrialsAfter:  len(trials),
		}
		if sess, err := s.store.GetSession(ctx, sessionID); err == nil {
			report.Pipeline = sess.PipelineType
		}
		return report, s.ApplyPermanent(ctx, sessionID)
	}

	return s.ApplyReset(ctx, sessionID)
}

// Plan computes the report RecoverSession would produce, with zero
// mutation, using the same selection logic as the mutating path.
func (s *Scheduler) Plan(ctx context.Context, sess *domain.Session) (SessionReport, error) {
	trials, err := s.store.TrialsBySession(ctx, sess.ID)
	if err != nil {
		return SessionReport{SessionID: sess.ID}, err
	}

	report := SessionReport{
		SessionID:    sess.ID,
		Pipeline:     sess.PipelineType,
		Class:        ClassifySession(trials),
		TrialsBefore: len(trials),
		TrialsAfter:  len(trials),
	}
	if report.Class == classifier.Permanent {
		return report, nil
	}

	victims := resetVictims(sess.PipelineType, trials)
	report.Deleted = len(victims)
	report.TrialsAfter = report.TrialsBefore - report.Deleted
	report.Relabeled = plannedRelabels(trials, victims)
	return report, nil
}

func plannedRelabels(trials []*domain.Trial, victims []string) int {
	victimSet := make(map[string]bool, len(victims))
	for _, id := range victims {
		victimSet[id] = true
	}
	var survivors []*domain.Trial
	for _, t := range trials {
		if !victimSet[t.ID] {
			survivors = append(survivors, t)
		}
	}
	return len(sequencer.Renumbering(survivors))
}

// Sweep runs one recovery pass over all candidates, one session and one
// transaction at a time, so a long sweep can be interrupted and resumed.
// A single session's failure never aborts the rest of the pass.
func (s *Scheduler) Sweep(ctx context.Context, dryRun bool) (SweepReport, error) {
	candidates, err := s.SelectCandidates(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Candidates: len(candidates)}
	metrics.SweepCandidates.Set(float64(len(candidates)))

	for _, sess := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var sr SessionReport
		var opErr error
		if dryRun {
			sr, opErr = s.Plan(ctx, sess)
		} else {
			opErr = s.withConflictRetry(ctx, func(ctx context.Context) error {
				var err error
				sr, err = s.RecoverSession(ctx, sess.ID)
				return err
			})
		}

		if opErr != nil {
			sr.SessionID = sess.ID
			sr.Pipeline = sess.PipelineType
			sr.Err = opErr
			report.Failures++
			metrics.SweepErrors.Inc()
			s.log.Error("session recovery failed", "session", sess.ID, "error", opErr)
			report.Sessions = append(report.Sessions, sr)
			continue
		}

		switch sr.Class {
		case classifier.Permanent:
			report.Permanent++
		default:
			report.Reset++
		}
		report.Deleted += sr.Deleted
		report.Relabeled += sr.Relabeled
		report.Sessions = append(report.Sessions, sr)
	}

	s.log.Info("recovery sweep finished",
		"dry_run", dryRun, "candidates", report.Candidates,
		"reset", report.Reset, "permanent", report.Permanent,
		"deleted", report.Deleted, "failures", report.Failures)
	return report, nil
}

// RunPeriodic sweeps on a fixed interval until the context is cancelled.
func (s *Scheduler) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx, false); err != nil {
				s.log.Error("recovery sweep failed", "error", err)
			}
		}
	}
}
