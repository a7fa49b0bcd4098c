// Package middleware holds CommandMiddleware implementations for
// cross-cutting command-bus concerns: concurrency retry and structured
// logging.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gadgets/cqrskit"
)

// ConcurrencyRetry retries a command through the rest of the chain up to
// maxAttempts times when it fails with a ConcurrencyFault, waiting
// retryDelay between attempts, adapting the teacher's Retry helper into a
// CommandMiddleware: a command that loses a race with another writer for
// the same aggregate gets a fresh Acquire/Handle/Save cycle rather than
// failing outright. Any non-concurrency error from next is returned
// immediately without retrying. Panics if maxAttempts is not positive or
// retryDelay is negative: both are programming errors caught at
// construction rather than surfaced mid-dispatch.
func ConcurrencyRetry(maxAttempts int, retryDelay time.Duration) cqrskit.CommandMiddleware {
	if maxAttempts <= 0 {
		panic("cqrskit/middleware: ConcurrencyRetry requires maxAttempts > 0")
	}
	if retryDelay < 0 {
		panic("cqrskit/middleware: ConcurrencyRetry requires retryDelay >= 0")
	}
	return func(next cqrskit.CommandHandler) cqrskit.CommandHandler {
		return func(ctx context.Context, cmd cqrskit.Command) error {
			var lastErr error
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				lastErr = next(ctx, cmd)
				if lastErr == nil {
					return nil
				}
				if _, ok := cqrskit.IsConcurrencyFault(lastErr); !ok {
					return lastErr
				}
				if attempt < maxAttempts && retryDelay > 0 {
					select {
					case <-time.After(retryDelay):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			return fmt.Errorf("cqrskit/middleware: exhausted %d attempts: %w", maxAttempts, lastErr)
		}
	}
}
