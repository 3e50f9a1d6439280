package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/trialworks/benchd/internal/core/domain"
)

const (
	conflictRetries = 4
	conflictBackoff = 100 * time.Millisecond
)

// withConflictRetry retries the operation with fibonacci backoff while
// it fails on same-session lock contention. Any other error is final.
func (s *Scheduler) withConflictRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(conflictRetries, retry.NewFibonacci(conflictBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if errors.Is(err, domain.ErrTransactionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
