package domain

import "time"

// PipelineType identifies which automated backend produced a session.
type PipelineType string

const (
	PipelineVanillaLLM   PipelineType = "vanilla_llm"
	PipelineRAG          PipelineType = "rag"
	PipelineVanillaAgent PipelineType = "vanilla_agent"
	PipelineBrowserAgent PipelineType = "browser_agent"
)

// Valid reports whether pt is a known pipeline type.
func (pt PipelineType) Valid() bool {
	switch pt {
	case PipelineVanillaLLM, PipelineRAG, PipelineVanillaAgent, PipelineBrowserAgent:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// Session is one end-to-end attempt at answering a benchmark question
// via a given pipeline. It owns an ordered collection of trials.
type Session struct {
	ID           string
	PipelineType PipelineType
	Status       SessionStatus
	IsCompleted  bool
	Dataset      string
	QuestionID   *string
	GroupID      *string
	TrialCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the session reached a state from which no
// automatic retry will occur.
func (s *Session) Terminal() bool {
	return s.IsCompleted &&
		(s.Status == SessionStatusCompleted || s.Status == SessionStatusError)
}
