package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/infra/storage"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db *DB
}

// NewStore creates a new PostgreSQL store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

type sessionRow struct {
	ID           string         `db:"id"`
	PipelineType string         `db:"pipeline_type"`
	Status       string         `db:"status"`
	IsCompleted  bool           `db:"is_completed"`
	Dataset      string         `db:"dataset"`
	QuestionID   sql.NullString `db:"question_id"`
	GroupID      sql.NullString `db:"group_id"`
	TrialCount   int            `db:"trial_count"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r sessionRow) toDomain() *domain.Session {
	s := &domain.Session{
		ID:           r.ID,
		PipelineType: domain.PipelineType(r.PipelineType),
		Status:       domain.SessionStatus(r.Status),
		IsCompleted:  r.IsCompleted,
		Dataset:      r.Dataset,
		TrialCount:   r.TrialCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.QuestionID.Valid {
		q := r.QuestionID.String
		s.QuestionID = &q
	}
	if r.GroupID.Valid {
		g := r.GroupID.String
		s.GroupID = &g
	}
	return s
}

type trialRow struct {
	ID        string       `db:"id"`
	SessionID string       `db:"session_id"`
	NumTrial  int          `db:"num_trial"`
	Status    string       `db:"status"`
	IsCorrect string       `db:"is_correct"`
	Answer    string       `db:"answer"`
	ErrorMsg  string       `db:"error_msg"`
	StartedAt time.Time    `db:"started_at"`
	EndedAt   sql.NullTime `db:"ended_at"`
}

func (r trialRow) toDomain() *domain.Trial {
	t := &domain.Trial{
		ID:        r.ID,
		SessionID: r.SessionID,
		NumTrial:  r.NumTrial,
		Status:    domain.TrialStatus(r.Status),
		IsCorrect: domain.Correctness(r.IsCorrect),
		Answer:    r.Answer,
		ErrorMsg:  r.ErrorMsg,
		StartedAt: r.StartedAt,
	}
	if r.EndedAt.Valid {
		end := r.EndedAt.Time
		t.EndedAt = &end
	}
	return t
}

const sessionColumns = `id, pipeline_type, status, is_completed, dataset, question_id, group_id, trial_count, created_at, updated_at`
const trialColumns = `id, session_id, num_trial, status, is_correct, answer, error_msg, started_at, ended_at`

// CreateSession persists a new session.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	query := `
		INSERT INTO sessions (id, pipeline_type, status, is_completed, dataset, question_id, group_id, trial_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		string(sess.PipelineType),
		string(sess.Status),
		sess.IsCompleted,
		sess.Dataset,
		nullString(sess.QuestionID),
		nullString(sess.GroupID),
		sess.TrialCount,
		sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return row.toDomain(), nil
}

// ListSessions retrieves sessions matching the filter.
func (s *Store) ListSessions(ctx context.Context, f storage.SessionFilter) ([]*domain.Session, error) {
	var conds []string
	var args []any

	if len(f.Status) > 0 {
		placeholders := make([]string, len(f.Status))
		for i, st := range f.Status {
			args = append(args, string(st))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, "s.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Dataset != "" {
		args = append(args, f.Dataset)
		conds = append(conds, fmt.Sprintf("s.dataset = $%d", len(args)))
	}
	if f.IsCompleted != nil {
		args = append(args, *f.IsCompleted)
		conds = append(conds, fmt.Sprintf("s.is_completed = $%d", len(args)))
	}
	if f.HasErrorTrial {
		conds = append(conds, "EXISTS (SELECT 1 FROM trials t WHERE t.session_id = s.id AND t.status = 'error')")
	}

	query := `SELECT s.` + strings.ReplaceAll(sessionColumns, ", ", ", s.") + ` FROM sessions s`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY s.created_at ASC"

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*domain.Session, len(rows))
	for i, r := range rows {
		sessions[i] = r.toDomain()
	}
	return sessions, nil
}

// TrialsBySession retrieves a session's trials ordered by num_trial.
func (s *Store) TrialsBySession(ctx context.Context, sessionID string) ([]*domain.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE session_id = $1 ORDER BY num_trial ASC`
	var rows []trialRow
	if err := s.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	trials := make([]*domain.Trial, len(rows))
	for i, r := range rows {
		trials[i] = r.toDomain()
	}
	return trials, nil
}

// GetTrial retrieves a trial by id.
func (s *Store) GetTrial(ctx context.Context, id string) (*domain.Trial, error) {
	var row trialRow
	query := `SELECT ` + trialColumns + ` FROM trials WHERE id = $1`
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTrialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trial: %w", err)
	}
	return row.toDomain(), nil
}

// JustificationsByTrial retrieves a trial's evidence.
func (s *Store) JustificationsByTrial(ctx context.Context, trialID string) ([]*domain.Justification, error) {
	query := `
		SELECT id, trial_id, url, text, evidence_type, created_at
		FROM justifications
		WHERE trial_id = $1
		ORDER BY created_at ASC, id ASC
	`

	var rows []struct {
		ID           string    `db:"id"`
		TrialID      string    `db:"trial_id"`
		URL          string    `db:"url"`
		Text         string    `db:"text"`
		EvidenceType string    `db:"evidence_type"`
		CreatedAt    time.Time `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, trialID); err != nil {
		return nil, fmt.Errorf("failed to list justifications: %w", err)
	}

	js := make([]*domain.Justification, len(rows))
	for i, r := range rows {
		js[i] = &domain.Justification{
			ID:           r.ID,
			TrialID:      r.TrialID,
			URL:          r.URL,
			Text:         r.Text,
			EvidenceType: domain.EvidenceType(r.EvidenceType),
			CreatedAt:    r.CreatedAt,
		}
	}
	return js, nil
}

// JustificationCounts returns trial id -> evidence count for every trial
// of the session, including trials with zero evidence.
func (s *Store) JustificationCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	return justificationCounts(ctx, s.db, sessionID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func justificationCounts(ctx context.Context, q queryer, sessionID string) (map[string]int, error) {
	query := `
		SELECT t.id, COUNT(j.id)
		FROM trials t
		LEFT JOIN justifications j ON j.trial_id = t.id
		WHERE t.session_id = $1
		GROUP BY t.id
	`
	rows, err := q.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count justifications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[string]int)
	for rows.Next() {
		var trialID string
		var count int
		if err := rows.Scan(&trialID, &count); err != nil {
			return nil, err
		}
		counts[trialID] = count
	}
	return counts, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
