package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trialworks/benchd/internal/core/domain"
	"github.com/trialworks/benchd/internal/infra/storage"
)

// Storage is an in-memory implementation of storage.Store used for
// tests and local development. Per-session mutexes stand in for row
// locks: a held lock surfaces as domain.ErrTransactionConflict, the
// same contract the PostgreSQL store exposes via FOR UPDATE NOWAIT.
type Storage struct {
	mu             sync.RWMutex
	sessions       map[string]*domain.Session
	trials         map[string]*domain.Trial
	justifications map[string]*domain.Justification

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewStorage creates an empty in-memory store.
func NewStorage() *Storage {
	return &Storage{
		sessions:       make(map[string]*domain.Session),
		trials:         make(map[string]*domain.Trial),
		justifications: make(map[string]*domain.Justification),
		locks:          make(map[string]*sync.Mutex),
	}
}

func (s *Storage) sessionLock(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

// CreateSession persists a new session.
func (s *Storage) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// GetSession retrieves a session by id.
func (s *Storage) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

// ListSessions retrieves sessions matching the filter.
func (s *Storage) ListSessions(ctx context.Context, f storage.SessionFilter) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Session
	for _, sess := range s.sessions {
		if !matchesFilter(sess, f, s.trials) {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func matchesFilter(sess *domain.Session, f storage.SessionFilter, trials map[string]*domain.Trial) bool {
	if len(f.Status) > 0 {
		found := false
		for _, st := range f.Status {
			if sess.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Dataset != "" && sess.Dataset != f.Dataset {
		return false
	}
	if f.IsCompleted != nil && sess.IsCompleted != *f.IsCompleted {
		return false
	}
	if f.HasErrorTrial {
		found := false
		for _, t := range trials {
			if t.SessionID == sess.ID && t.Status == domain.TrialStatusError {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TrialsBySession retrieves a session's trials ordered by num_trial.
func (s *Storage) TrialsBySession(ctx context.Context, sessionID string) ([]*domain.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trialsLocked(sessionID), nil
}

func (s *Storage) trialsLocked(sessionID string) []*domain.Trial {
	var out []*domain.Trial
	for _, t := range s.trials {
		if t.SessionID == sessionID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NumTrial < out[j].NumTrial })
	return out
}

// GetTrial retrieves a trial by id.
func (s *Storage) GetTrial(ctx context.Context, id string) (*domain.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trials[id]
	if !ok {
		return nil, domain.ErrTrialNotFound
	}
	cp := *t
	return &cp, nil
}

// JustificationsByTrial retrieves a trial's evidence.
func (s *Storage) JustificationsByTrial(ctx context.Context, trialID string) ([]*domain.Justification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Justification
	for _, j := range s.justifications {
		if j.TrialID == trialID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// JustificationCounts returns trial id -> evidence count for the session.
func (s *Storage) JustificationCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.justificationCountsLocked(sessionID), nil
}

func (s *Storage) justificationCountsLocked(sessionID string) map[string]int {
	counts := make(map[string]int)
	for _, t := range s.trials {
		if t.SessionID == sessionID {
			counts[t.ID] = 0
		}
	}
	for _, j := range s.justifications {
		if _, ok := counts[j.TrialID]; ok {
			counts[j.TrialID]++
		}
	}
	return counts
}

// Begin opens a unit of work holding the session's lock. A held lock
// surfaces immediately as domain.ErrTransactionConflict.
func (s *Storage) Begin(ctx context.Context, sessionID string) (storage.UnitOfWork, error) {
	s.mu.RLock()
	_, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	lock := s.sessionLock(sessionID)
	if !lock.TryLock() {
		return nil, domain.ErrTransactionConflict
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		lock.Unlock()
		return nil, domain.ErrSessionNotFound
	}

	u := &unitOfWork{
		store:    s,
		lock:     lock,
		session:  copySession(sess),
		snapshot: copySession(sess),
	}
	for _, t := range s.trialsLocked(sessionID) {
		u.trials = append(u.trials, t)
	}
	for _, j := range s.justifications {
		if _, ok := s.trials[j.TrialID]; ok && s.trials[j.TrialID].SessionID == sessionID {
			cp := *j
			u.evidence = append(u.evidence, &cp)
		}
	}
	return u, nil
}

func copySession(s *domain.Session) *domain.Session {
	cp := *s
	return &cp
}

// unitOfWork stages mutations against copies and applies them to the
// store on Commit, so a rolled-back transaction is never observable.
type unitOfWork struct {
	store    *Storage
	lock     *sync.Mutex
	done     bool
	session  *domain.Session
	snapshot *domain.Session
	trials   []*domain.Trial
	evidence []*domain.Justification
	deleted  []string
}

func (u *unitOfWork) Session() *domain.Session {
	return u.snapshot
}

func (u *unitOfWork) Trials(ctx context.Context) ([]*domain.Trial, error) {
	out := make([]*domain.Trial, 0, len(u.trials))
	for _, t := range u.trials {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NumTrial < out[j].NumTrial })
	return out, nil
}

func (u *unitOfWork) JustificationCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, t := range u.trials {
		counts[t.ID] = 0
	}
	for _, j := range u.evidence {
		if _, ok := counts[j.TrialID]; ok {
			counts[j.TrialID]++
		}
	}
	return counts, nil
}

func (u *unitOfWork) InsertTrial(ctx context.Context, t *domain.Trial) error {
	cp := *t
	u.trials = append(u.trials, &cp)
	return nil
}

func (u *unitOfWork) UpdateTrial(ctx context.Context, t *domain.Trial) error {
	for i, existing := range u.trials {
		if existing.ID == t.ID {
			cp := *t
			u.trials[i] = &cp
			return nil
		}
	}
	return domain.ErrTrialNotFound
}

func (u *unitOfWork) DeleteTrials(ctx context.Context, ids []string) (int, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	var kept []*domain.Trial
	deleted := 0
	for _, t := range u.trials {
		if idSet[t.ID] {
			u.deleted = append(u.deleted, t.ID)
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	u.trials = kept

	// Cascade evidence
	var keptEvidence []*domain.Justification
	for _, j := range u.evidence {
		if !idSet[j.TrialID] {
			keptEvidence = append(keptEvidence, j)
		}
	}
	u.evidence = keptEvidence
	return deleted, nil
}

func (u *unitOfWork) RenumberTrials(ctx context.Context, renumbering map[string]int) error {
	for _, t := range u.trials {
		if num, ok := renumbering[t.ID]; ok {
			t.NumTrial = num
		}
	}
	return nil
}

func (u *unitOfWork) InsertJustifications(ctx context.Context, js []*domain.Justification) error {
	for _, j := range js {
		cp := *j
		u.evidence = append(u.evidence, &cp)
	}
	return nil
}

func (u *unitOfWork) UpdateSession(ctx context.Context, s *domain.Session) error {
	cp := *s
	cp.UpdatedAt = time.Now()
	u.session = &cp
	return nil
}

func (u *unitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	defer u.lock.Unlock()

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	u.store.sessions[u.session.ID] = copySession(u.session)

	// Remove everything the transaction saw, then write back staged state.
	for id, t := range u.store.trials {
		if t.SessionID == u.session.ID {
			delete(u.store.trials, id)
		}
	}
	for id, j := range u.store.justifications {
		owner, ok := u.store.trials[j.TrialID]
		if !ok || owner == nil {
			delete(u.store.justifications, id)
		}
	}
	for _, t := range u.trials {
		cp := *t
		u.store.trials[t.ID] = &cp
	}
	for _, j := range u.evidence {
		cp := *j
		u.store.justifications[j.ID] = &cp
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	u.lock.Unlock()
	return nil
}
