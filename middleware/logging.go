package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-gadgets/cqrskit"
)

// callCounter is shared across every command dispatched through one
// Logging instance, the same way the teacher's logging middleware counted
// calls across commit/refresh invocations.
type callCounter struct{ n int }

// Logging builds a CommandMiddleware that logs the start, completion, and
// any error of every command dispatched through it, in the structured
// start/complete/error style of the teacher's commit/refresh logging
// middleware, using zerolog fields in place of logrus fields. level picks
// the level used for the start/complete entries; errors always log at
// Error regardless of level.
func Logging(logger zerolog.Logger, level zerolog.Level) cqrskit.CommandMiddleware {
	counter := &callCounter{}
	return func(next cqrskit.CommandHandler) cqrskit.CommandHandler {
		return func(ctx context.Context, cmd cqrskit.Command) error {
			call := counter.n
			counter.n++

			ec := cqrskit.ExecutionContextFrom(ctx)
			entry := logger.With().
				Str("command_type", fmt.Sprintf("%T", cmd)).
				Str("aggregate_id", cqrskit.CommandMeta(cmd).AggregateID.String()).
				Int("call", call).
				Str("correlation_id", ec.CorrelationID.String()).
				Str("command_id", ec.CommandID.String()).
				Logger()

			start := time.Now()
			entry.WithLevel(level).Msg("command_start")

			err := next(ctx, cmd)

			elapsed := time.Since(start)
			if err != nil {
				entry.Error().Err(err).Dur("elapsed", elapsed).Msg("command_error")
				return err
			}

			entry.WithLevel(level).Dur("elapsed", elapsed).Msg("command_complete")
			return nil
		}
	}
}
