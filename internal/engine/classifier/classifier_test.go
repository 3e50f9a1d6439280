package classifier

import (
	"testing"

	"github.com/trialworks/benchd/internal/core/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Class
	}{
		{"context length exceeded", "Error: maximum context length exceeded", Permanent},
		{"context length marker", "This model's context length is 8192 tokens", Permanent},
		{"uppercase marker", "MAXIMUM CONTEXT reached", Permanent},
		{"mixed case marker", "Maximum Context Length Exceeded", Permanent},
		{"timeout", "Error: connection timeout", Retryable},
		{"rate limit", "429 too many requests", Retryable},
		{"empty message", "", Retryable},
		{"unrelated context word", "no browser context available", Retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.message); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	msg := "Error: maximum context length exceeded"
	for i := 0; i < 100; i++ {
		if Classify(msg) != Permanent {
			t.Fatal("classification must be reproducible")
		}
	}
}

func TestClassifyOutcome(t *testing.T) {
	if got := ClassifyOutcome(domain.FailureOutcome("maximum context length exceeded")); got != Permanent {
		t.Errorf("failure outcome: got %v, want permanent", got)
	}
	if got := ClassifyOutcome(domain.SuccessOutcome("42", domain.CorrectnessCorrect, nil)); got != Retryable {
		t.Errorf("success outcome: got %v, want retryable", got)
	}
	if got := ClassifyOutcome(domain.CancelledOutcome()); got != Retryable {
		t.Errorf("cancelled outcome: got %v, want retryable", got)
	}
}
