package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/engine/metrics"
	"github.com/trialworks/benchd/internal/infra/storage"
)

// lockNotAvailable is the PostgreSQL error code raised by FOR UPDATE NOWAIT
// when another transaction holds the row lock.
const lockNotAvailable = "55P03"

// UnitOfWork bundles all mutations of one session into a single
// transaction holding the session's row lock.
type UnitOfWork struct {
	tx      *sqlx.Tx
	session *domain.Session
}

// Begin opens a unit of work scoped to one session. The session row is
// locked with FOR UPDATE NOWAIT; a held lock surfaces as
// domain.ErrTransactionConflict.
func (s *Store) Begin(ctx context.Context, sessionID string) (storage.UnitOfWork, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var row sessionRow
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE NOWAIT`
	err = tx.GetContext(ctx, &row, query, sessionID)
	if err != nil {
		_ = tx.Rollback()

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			metrics.TransactionConflicts.Inc()
			return nil, domain.ErrTransactionConflict
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}

	return &UnitOfWork{tx: tx, session: row.toDomain()}, nil
}

// Session returns the snapshot loaded under the lock at Begin.
func (u *UnitOfWork) Session() *domain.Session {
	return u.session
}

// Trials returns the session's trials as seen by this transaction.
func (u *UnitOfWork) Trials(ctx context.Context) ([]*domain.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE session_id = $1 ORDER BY num_trial ASC`
	var rows []trialRow
	if err := u.tx.SelectContext(ctx, &rows, query, u.session.ID); err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	trials := make([]*domain.Trial, len(rows))
	for i, r := range rows {
		trials[i] = r.toDomain()
	}
	return trials, nil
}

// JustificationCounts returns trial id -> evidence count as seen by this
// transaction.
func (u *UnitOfWork) JustificationCounts(ctx context.Context) (map[string]int, error) {
	return justificationCounts(ctx, u.tx, u.session.ID)
}

// InsertTrial adds a trial to the session.
func (u *UnitOfWork) InsertTrial(ctx context.Context, t *domain.Trial) error {
	query := `
		INSERT INTO trials (id, session_id, num_trial, status, is_correct, answer, error_msg, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := u.tx.ExecContext(ctx, query,
		t.ID,
		t.SessionID,
		t.NumTrial,
		string(t.Status),
		string(t.IsCorrect),
		t.Answer,
		t.ErrorMsg,
		t.StartedAt,
		nullTime(t.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trial: %w", err)
	}
	return nil
}

// UpdateTrial writes a trial's final state.
func (u *UnitOfWork) UpdateTrial(ctx context.Context, t *domain.Trial) error {
	query := `
		UPDATE trials
		SET status = $2, is_correct = $3, answer = $4, error_msg = $5, ended_at = $6
		WHERE id = $1
	`
	res, err := u.tx.ExecContext(ctx, query,
		t.ID,
		string(t.Status),
		string(t.IsCorrect),
		t.Answer,
		t.ErrorMsg,
		nullTime(t.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update trial: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrTrialNotFound
	}
	return nil
}

// DeleteTrials removes the given trials. Evidence rows cascade.
func (u *UnitOfWork) DeleteTrials(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `DELETE FROM trials WHERE session_id = $1 AND id = ANY($2)`
	res, err := u.tx.ExecContext(ctx, query, u.session.ID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete trials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RenumberTrials relabels trials to the given num_trial values. The
// (session_id, num_trial) uniqueness constraint is deferred to commit,
// so intermediate states inside the transaction may overlap.
func (u *UnitOfWork) RenumberTrials(ctx context.Context, renumbering map[string]int) error {
	if len(renumbering) == 0 {
		return nil
	}
	if _, err := u.tx.ExecContext(ctx, `SET CONSTRAINTS trials_session_num_key DEFERRED`); err != nil {
		return fmt.Errorf("failed to defer constraint: %w", err)
	}
	for id, num := range renumbering {
		query := `UPDATE trials SET num_trial = $2 WHERE id = $1 AND session_id = $3`
		if _, err := u.tx.ExecContext(ctx, query, id, num, u.session.ID); err != nil {
			return fmt.Errorf("failed to renumber trial %s: %w", id, err)
		}
	}
	return nil
}

// InsertJustifications adds evidence rows.
func (u *UnitOfWork) InsertJustifications(ctx context.Context, js []*domain.Justification) error {
	for _, j := range js {
		query := `
			INSERT INTO justifications (id, trial_id, url, text, evidence_type, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := u.tx.ExecContext(ctx, query,
			j.ID,
			j.TrialID,
			j.URL,
			j.Text,
			string(j.EvidenceType),
			j.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert justification: %w", err)
		}
	}
	return nil
}

// UpdateSession writes the session's state.
func (u *UnitOfWork) UpdateSession(ctx context.Context, s *domain.Session) error {
	query := `
		UPDATE sessions
		SET status = $2, is_completed = $3, trial_count = $4, updated_at = $5
		WHERE id = $1
	`
	_, err := u.tx.ExecContext(ctx, query,
		s.ID,
		string(s.Status),
		s.IsCompleted,
		s.TrialCount,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
