package domain

import "time"

type EvidenceType string

const (
	EvidenceWebPage   EvidenceType = "web_page"
	EvidenceRetrieved EvidenceType = "retrieved_passage"
	EvidenceToolCall  EvidenceType = "tool_call"
)

// Justification is one piece of evidence (URL + text) a trial cites in
// support of its answer.
type Justification struct {
	ID           string
	TrialID      string
	URL          string
	Text         string
	EvidenceType EvidenceType
	CreatedAt    time.Time
}
