package cqrskit

import "context"

// IdempotencyStore records which idempotency keys have already been
// processed, so IdempotencyMiddleware can skip redelivering a command
// whose key it has already seen rather than re-running its side effects.
type IdempotencyStore interface {
	// MarkIfAbsent records key as seen and returns true if key had not
	// been recorded before (this call "won"), or false if it was already
	// present. Implementations must perform the check-and-set atomically.
	MarkIfAbsent(ctx context.Context, key string) (bool, error)
}

// IdempotencyMiddleware skips commands whose IdempotencyKey has already
// been recorded in store, instead of dispatching them to the next handler
// a second time. Commands with no IdempotencyKey set always pass through.
func IdempotencyMiddleware(store IdempotencyStore) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx context.Context, cmd Command) error {
			meta := cmd.commandMeta()
			if !meta.HasIdempotencyKey() {
				return next(ctx, cmd)
			}
			won, err := store.MarkIfAbsent(ctx, meta.IdempotencyKey)
			if err != nil {
				return err
			}
			if !won {
				return nil
			}
			return next(ctx, cmd)
		}
	}
}
