package cqrskit

import (
	"context"
	"errors"
	"time"
)

// ProcessorExecutor drives one EventProcessor's run loop against a
// Subscription: an initial catchup pass, then repeatedly pulling up to
// batchSize events one at a time and handling each, measuring Lag off the
// subscription itself after every batch to decide whether another catchup
// pass is due. Restores an ExecutionContext per event (the event's
// correlation id, with the event's own id as causation) before calling the
// processor, so a processor's
// handler never leaks context from one event into the next.
type ProcessorExecutor struct {
	name       string
	condition  CatchupCondition
	strategy   CatchupStrategy
	batchSize  int
	lagMetrics LagRecorder
}

// ExecutorOption configures a ProcessorExecutor at construction time.
type ExecutorOption func(*ProcessorExecutor)

// WithBatchSize overrides the default batch size of 64.
func WithBatchSize(n int) ExecutorOption {
	return func(e *ProcessorExecutor) { e.batchSize = n }
}

// WithLagRecorder attaches a LagRecorder that observes every Lag
// measurement the executor takes, for metrics export.
func WithLagRecorder(r LagRecorder) ExecutorOption {
	return func(e *ProcessorExecutor) { e.lagMetrics = r }
}

// NewProcessorExecutor builds an executor for a processor named name, used
// as the processor label on every LagRecorder observation, running
// strategy's catchup whenever condition fires. The name is not passed to
// the strategy: a checkpointing strategy such as FromAggregateSnapshot
// carries its own ProcessorName.
func NewProcessorExecutor(name string, condition CatchupCondition, strategy CatchupStrategy, opts ...ExecutorOption) *ProcessorExecutor {
	e := &ProcessorExecutor{
		name:      name,
		condition: condition,
		strategy:  strategy,
		batchSize: 64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs an initial catchup pass and then loops forever: pull up to
// batchSize events from sub one at a time, skip any already covered by the
// current catchup result's skip window, and hand the rest to proc. After
// each batch it measures Lag from sub.Depth() and the mean age of the
// events it actually dispatched, and re-runs the catchup strategy if
// condition fires on that Lag. Returns nil when sub reaches end of stream,
// the error from the first failing handler, or ctx's error if cancelled.
func (e *ProcessorExecutor) Run(ctx context.Context, proc EventProcessor, sub Subscription) error {
	result, err := e.strategy.Catchup(ctx, proc)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var totalAge time.Duration
		dispatched := 0
		for i := 0; i < e.batchSize; i++ {
			env, err := sub.Next(ctx)
			if err != nil {
				if errors.Is(err, ErrEndOfStream) {
					return nil
				}
				return err
			}

			if result.shouldSkip(env) {
				continue
			}

			eventCtx := WithExecutionContext(ctx, ExecutionContext{
				CorrelationID: env.CorrelationID,
				CausationID:   env.ID,
			})
			handleErr := proc.handle(eventCtx, env)

			totalAge += time.Since(env.Timestamp)
			dispatched++
			if handleErr != nil {
				return handleErr
			}
		}

		meanAge := time.Duration(0)
		if dispatched > 0 {
			meanAge = totalAge / time.Duration(dispatched)
		}
		lag := Lag{UnprocessedCount: int64(sub.Depth()), MeanAge: meanAge}
		if e.lagMetrics != nil {
			e.lagMetrics.Observe(e.name, lag)
		}

		result = CatchupResult{}
		if e.condition != nil && e.condition.ShouldCatchup(lag) {
			result, err = e.strategy.Catchup(ctx, proc)
			if err != nil {
				return err
			}
		}
	}
}
