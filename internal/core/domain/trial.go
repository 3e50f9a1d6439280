package domain

import "time"

type TrialStatus string

const (
	TrialStatusPending TrialStatus = "pending"
	TrialStatusRunning TrialStatus = "running"
	TrialStatusSuccess TrialStatus = "success"
	TrialStatusError   TrialStatus = "error"
)

// Correctness is the tri-state answer grade of a trial. A trial that
// finished but has not been graded yet stays unknown.
type Correctness string

const (
	CorrectnessUnknown   Correctness = "unknown"
	CorrectnessCorrect   Correctness = "correct"
	CorrectnessIncorrect Correctness = "incorrect"
)

// Trial is one numbered attempt ("turn") within a session.
// NumTrial values within a session form the contiguous set {1..N}.
type Trial struct {
	ID        string
	SessionID string
	NumTrial  int
	Status    TrialStatus
	IsCorrect Correctness
	Answer    string
	ErrorMsg  string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Finished reports whether the trial reached a final status.
func (t *Trial) Finished() bool {
	return t.Status == TrialStatusSuccess || t.Status == TrialStatusError
}

// OutcomeKind tags the result a Runner reports for a trial.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailure   OutcomeKind = "failure"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the tagged result of a Runner call, decided once at the
// Runner boundary. Success carries the answer and its supporting
// evidence; Failure carries the verbatim error message.
type Outcome struct {
	Kind           OutcomeKind
	Answer         string
	Correct        Correctness
	Justifications []Justification
	Message        string
}

// SuccessOutcome builds a success outcome with the given answer grade
// and supporting evidence.
func SuccessOutcome(answer string, correct Correctness, evidence []Justification) Outcome {
	return Outcome{
		Kind:           OutcomeSuccess,
		Answer:         answer,
		Correct:        correct,
		Justifications: evidence,
	}
}

// FailureOutcome builds a failure outcome carrying the Runner's error
// message verbatim.
func FailureOutcome(message string) Outcome {
	return Outcome{Kind: OutcomeFailure, Message: message}
}

// CancelledOutcome marks a trial that was interrupted cooperatively.
func CancelledOutcome() Outcome {
	return Outcome{Kind: OutcomeCancelled, Message: "cancelled"}
}
