// Package classifier decides whether a trial failure is worth retrying.
//
// The rule is a fixed, case-insensitive substring match. It is kept
// deliberately dumb: recovery decisions must be exactly reproducible, so
// two sweeps over the same data always reach the same verdict.
package classifier

import (
	"strings"

	"github.com/trialworks/benchd/internal/core/domain"
)

// Class is the recovery verdict for a failure message.
type Class string

const (
	// Retryable failures clear on their own (timeouts, rate limits,
	// transient provider errors).
	Retryable Class = "retryable"

	// Permanent failures persist across the session's accumulated state
	// (context window exhaustion) and make further retries pointless.
	Permanent Class = "permanent"
)

// permanentMarkers are matched case-insensitively against the failure
// message. Context exhaustion poisons the whole session: the prompt that
// overflowed will overflow again.
var permanentMarkers = []string{
	"context length",
	"maximum context",
}

// Classify maps a failure message to a recovery class.
func Classify(message string) Class {
	lower := strings.ToLower(message)
	for _, marker := range permanentMarkers {
		if strings.Contains(lower, marker) {
			return Permanent
		}
	}
	return Retryable
}

// ClassifyOutcome classifies a Runner outcome. Only failures are
// inspected; success and cancellation are always retryable.
func ClassifyOutcome(o domain.Outcome) Class {
	if o.Kind != domain.OutcomeFailure {
		return Retryable
	}
	return Classify(o.Message)
}
