// Package runner is the boundary between the engine and the external
// pipeline drivers. The Guard enforces mutual exclusion and lifecycle
// invariants; the Runner performs the actual LLM/RAG/agent/browser call
// and reports a tagged Outcome back.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/engine/metrics"
	"github.com/trialworks/benchd/internal/engine/sequencer"
	"github.com/trialworks/benchd/internal/infra/storage"
)

// Handle identifies an in-flight trial handed to a Runner.
type Handle struct {
	SessionID string
	TrialID   string
	NumTrial  int
}

// StopFlags is the advisory cooperative-cancellation store. Set returns
// false when the flag was already set (double-stop is a no-op).
type StopFlags interface {
	Set(ctx context.Context, sessionID string) (bool, error)
	IsSet(ctx context.Context, sessionID string) (bool, error)
	Clear(ctx context.Context, sessionID string) error
}

// Guard is the runner-facing surface of the engine.
type Guard struct {
	store     storage.Store
	flags     StopFlags
	formatter TraceFormatter
	log       *slog.Logger
}

// NewGuard creates a new concurrency guard.
func NewGuard(store storage.Store, flags StopFlags, formatter TraceFormatter, log *slog.Logger) *Guard {
	if formatter == nil {
		formatter = TextFormatter{}
	}
	return &Guard{store: store, flags: flags, formatter: formatter, log: log}
}

// CreateSession schedules a question against a pipeline.
func (g *Guard) CreateSession(ctx context.Context, pipeline domain.PipelineType, dataset string, questionID, groupID *string) (*domain.Session, error) {
	if !pipeline.Valid() {
		return nil, fmt.Errorf("unknown pipeline type %q", pipeline)
	}
	sess := &domain.Session{
		ID:           uuid.New().String(),
		PipelineType: pipeline,
		Status:       domain.SessionStatusPending,
		Dataset:      dataset,
		QuestionID:   questionID,
		GroupID:      groupID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := g.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	g.log.Info("session created",
		"session", sess.ID, "pipeline", pipeline, "dataset", dataset)
	return sess, nil
}

// GetSession retrieves a session by id.
func (g *Guard) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return g.store.GetSession(ctx, id)
}

// BeginTrial acquires the session's exclusive lock, assigns the next
// trial index, and creates a running trial. It refuses to start when the
// session was stopped, already has a running trial, or already holds a
// correct answer. Lock contention surfaces as ErrTransactionConflict.
func (g *Guard) BeginTrial(ctx context.Context, sessionID string) (Handle, error) {
	stopped, err := g.flags.IsSet(ctx, sessionID)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to read stop flag: %w", err)
	}
	if stopped {
		return Handle{}, domain.ErrSessionStopped
	}

	uow, err := g.store.Begin(ctx, sessionID)
	if err != nil {
		return Handle{}, err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	sess := uow.Session()
	if sess.Terminal() {
		return Handle{}, domain.ErrSessionClosed
	}

	trials, err := uow.Trials(ctx)
	if err != nil {
		return Handle{}, err
	}
	for _, t := range trials {
		if t.Status == domain.TrialStatusRunning {
			return Handle{}, domain.ErrActiveTrial
		}
	}
	if sequencer.FirstCorrect(trials) != nil {
		return Handle{}, domain.ErrSessionClosed
	}

	num := sequencer.NextNum(trials)
	trial := &domain.Trial{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		NumTrial:  num,
		Status:    domain.TrialStatusRunning,
		IsCorrect: domain.CorrectnessUnknown,
		StartedAt: time.Now(),
	}
	if err := uow.InsertTrial(ctx, trial); err != nil {
		return Handle{}, err
	}

	sess.Status = domain.SessionStatusRunning
	sess.TrialCount = len(trials) + 1
	if err := uow.UpdateSession(ctx, sess); err != nil {
		return Handle{}, err
	}
	if err := uow.Commit(); err != nil {
		return Handle{}, err
	}

	metrics.TrialsStarted.WithLabelValues(string(sess.PipelineType)).Inc()
	g.log.Debug("trial started", "session", sessionID, "trial", trial.ID, "num", num)
	return Handle{SessionID: sessionID, TrialID: trial.ID, NumTrial: num}, nil
}

// CompleteTrial writes the trial's final state from the Runner's tagged
// outcome. The outcome kind is decided once, here at the boundary.
func (g *Guard) CompleteTrial(ctx context.Context, h Handle, outcome domain.Outcome) error {
	uow, err := g.store.Begin(ctx, h.SessionID)
	if err != nil {
		return err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	trials, err := uow.Trials(ctx)
	if err != nil {
		return err
	}
	var trial *domain.Trial
	for _, t := range trials {
		if t.ID == h.TrialID {
			trial = t
			break
		}
	}
	if trial == nil {
		return domain.ErrTrialNotFound
	}

	now := time.Now()
	trial.EndedAt = &now
	sess := uow.Session()

	switch outcome.Kind {
	case domain.OutcomeSuccess:
		trial.Status = domain.TrialStatusSuccess
		trial.Answer = outcome.Answer
		trial.IsCorrect = outcome.Correct
		trial.ErrorMsg = ""

		js := make([]*domain.Justification, 0, len(outcome.Justifications))
		for _, j := range outcome.Justifications {
			js = append(js, &domain.Justification{
				ID:           uuid.New().String(),
				TrialID:      trial.ID,
				URL:          j.URL,
				Text:         j.Text,
				EvidenceType: j.EvidenceType,
				CreatedAt:    now,
			})
		}
		if err := uow.InsertJustifications(ctx, js); err != nil {
			return err
		}

		if outcome.Correct == domain.CorrectnessCorrect {
			sess.Status = domain.SessionStatusCompleted
			sess.IsCompleted = true
		} else {
			sess.Status = domain.SessionStatusPending
		}

	case domain.OutcomeFailure:
		trial.Status = domain.TrialStatusError
		trial.ErrorMsg = outcome.Message
		sess.Status = domain.SessionStatusError

	case domain.OutcomeCancelled:
		trial.Status = domain.TrialStatusError
		trial.ErrorMsg = outcome.Message
		sess.Status = domain.SessionStatusPending

	default:
		return fmt.Errorf("unknown outcome kind %q", outcome.Kind)
	}

	if err := uow.UpdateTrial(ctx, trial); err != nil {
		return err
	}
	if err := uow.UpdateSession(ctx, sess); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	metrics.TrialsFinished.WithLabelValues(string(sess.PipelineType), string(trial.Status)).Inc()
	metrics.TrialDuration.WithLabelValues(string(sess.PipelineType)).
		Observe(now.Sub(trial.StartedAt).Seconds())
	g.log.Debug("trial finished",
		"session", h.SessionID, "trial", h.TrialID, "status", trial.Status)
	return nil
}

// FailTrial records the Runner's error message verbatim; the engine does
// not interpret it beyond the classifier at recovery time.
func (g *Guard) FailTrial(ctx context.Context, h Handle, message string) error {
	return g.CompleteTrial(ctx, h, domain.FailureOutcome(message))
}

// StopSession raises the advisory stop flag. No new trial starts
// afterward; an in-flight trial runs to whatever status it reaches.
// Stopping twice is a no-op.
func (g *Guard) StopSession(ctx context.Context, sessionID string) error {
	if _, err := g.store.GetSession(ctx, sessionID); err != nil {
		return err
	}
	first, err := g.flags.Set(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set stop flag: %w", err)
	}
	if first {
		g.log.Info("session stop requested", "session", sessionID)
	}
	return nil
}
