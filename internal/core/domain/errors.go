package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session id does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTrialNotFound is returned when a trial id does not exist.
	ErrTrialNotFound = errors.New("trial not found")

	// ErrTransactionConflict is returned when a session's row lock is
	// held by another caller. The caller retries with backoff.
	ErrTransactionConflict = errors.New("transaction conflict: session locked by another caller")

	// ErrActiveTrial is returned by BeginTrial when the session already
	// has a running trial.
	ErrActiveTrial = errors.New("session already has a running trial")

	// ErrSessionStopped is returned by BeginTrial after a cooperative
	// stop was requested for the session.
	ErrSessionStopped = errors.New("session is stopped")

	// ErrSessionClosed is returned by BeginTrial once a correct trial
	// exists; no further trials may be added.
	ErrSessionClosed = errors.New("session already has a correct trial")
)

// InvariantViolationError reports a structural invariant that failed a
// pre-commit check. The enclosing transaction aborts entirely.
type InvariantViolationError struct {
	SessionID string
	Rule      string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant %s violated for session %s: %s", e.Rule, e.SessionID, e.Detail)
}
