package storage

import (
	"context"

	"github.com/trialworks/benchd/internal/core/domain"
)

// SessionFilter narrows ListSessions. Zero value matches everything.
type SessionFilter struct {
	Status        []domain.SessionStatus
	Dataset       string
	IsCompleted   *bool
	HasErrorTrial bool
}

// Store is the persistence boundary of the engine. Read methods take no
// locks; all mutation goes through a session-scoped UnitOfWork.
type Store interface {
	// CreateSession persists a new session.
	CreateSession(ctx context.Context, s *domain.Session) error

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions retrieves sessions matching the filter.
	ListSessions(ctx context.Context, f SessionFilter) ([]*domain.Session, error)

	// TrialsBySession retrieves a session's trials ordered by num_trial.
	TrialsBySession(ctx context.Context, sessionID string) ([]*domain.Trial, error)

	// GetTrial retrieves a trial by id.
	GetTrial(ctx context.Context, id string) (*domain.Trial, error)

	// JustificationsByTrial retrieves a trial's evidence.
	JustificationsByTrial(ctx context.Context, trialID string) ([]*domain.Justification, error)

	// JustificationCounts returns trial id -> evidence count for every
	// trial of the session, including trials with zero evidence.
	JustificationCounts(ctx context.Context, sessionID string) (map[string]int, error)

	// Begin opens a unit of work scoped to exactly one session,
	// acquiring its row lock without waiting. A held lock surfaces as
	// domain.ErrTransactionConflict. Locks are never acquired across
	// two sessions simultaneously.
	Begin(ctx context.Context, sessionID string) (UnitOfWork, error)
}

// UnitOfWork bundles all mutations of one session's row-subtree into a
// single transaction: all succeed or all fail.
type UnitOfWork interface {
	// Session returns the snapshot loaded under the lock at Begin.
	Session() *domain.Session

	// Trials returns the session's trials as seen by this transaction,
	// ordered by num_trial.
	Trials(ctx context.Context) ([]*domain.Trial, error)

	// JustificationCounts returns trial id -> evidence count as seen by
	// this transaction.
	JustificationCounts(ctx context.Context) (map[string]int, error)

	// InsertTrial adds a trial to the session.
	InsertTrial(ctx context.Context, t *domain.Trial) error

	// UpdateTrial writes a trial's final state.
	UpdateTrial(ctx context.Context, t *domain.Trial) error

	// DeleteTrials removes the given trials and their evidence,
	// returning the number actually deleted.
	DeleteTrials(ctx context.Context, ids []string) (int, error)

	// RenumberTrials relabels trials to the given num_trial values.
	RenumberTrials(ctx context.Context, renumbering map[string]int) error

	// InsertJustifications adds evidence rows.
	InsertJustifications(ctx context.Context, js []*domain.Justification) error

	// UpdateSession writes the session's state.
	UpdateSession(ctx context.Context, s *domain.Session) error

	// Commit commits the transaction.
	Commit() error

	// Rollback rolls back the transaction. Safe to call after Commit.
	Rollback() error
}
