package cqrskit

import (
	"context"
	"fmt"
	"time"
)

// Lag measures how far behind a processor is from the head of its event
// stream: how many events are waiting on its subscription, and the mean
// age of the events dispatched in the batch just processed.
type Lag struct {
	UnprocessedCount int64
	MeanAge          time.Duration
}

// LagRecorder observes a processor's Lag each time the executor measures
// it, so an application can chart backlog and staleness over time (see
// metrics.Recorder for a Prometheus-backed implementation).
type LagRecorder interface {
	Observe(processorName string, lag Lag)
}

// CatchupCondition decides whether a processor's current Lag warrants
// running its CatchupStrategy instead of continuing normal batch
// processing.
type CatchupCondition interface {
	ShouldCatchup(lag Lag) bool
}

// NeverCatchup always declines: the processor only ever processes new
// events as they arrive, regardless of how far behind it falls.
type NeverCatchup struct{}

func (NeverCatchup) ShouldCatchup(Lag) bool { return false }

// AfterNEvents triggers catchup once unprocessed count reaches N.
type AfterNEvents struct{ N int64 }

func (c AfterNEvents) ShouldCatchup(lag Lag) bool { return lag.UnprocessedCount >= c.N }

// AfterNAge triggers catchup once the mean age of the events dispatched in
// the last batch (Lag.MeanAge) reaches D.
type AfterNAge struct{ D time.Duration }

func (c AfterNAge) ShouldCatchup(lag Lag) bool { return lag.MeanAge >= c.D }

// AnyOf triggers catchup if any of its conditions would.
type AnyOf []CatchupCondition

func (c AnyOf) ShouldCatchup(lag Lag) bool {
	for _, cond := range c {
		if cond.ShouldCatchup(lag) {
			return true
		}
	}
	return false
}

// AllOf triggers catchup only if every one of its conditions would.
type AllOf []CatchupCondition

func (c AllOf) ShouldCatchup(lag Lag) bool {
	for _, cond := range c {
		if !cond.ShouldCatchup(lag) {
			return false
		}
	}
	return true
}

// CatchupResult describes a catchup run: a skip_before timestamp marking
// the point up to which events were already handled by the catchup itself,
// so the executor's following batch loop does not redeliver them. A zero
// SkipBefore means no skip window.
type CatchupResult struct {
	Ran        bool
	SkipBefore time.Time
}

// shouldSkip reports whether env was already handled by the catchup run
// that produced r: should_skip(e) in the framework this implements,
// true iff r carries a skip window and e's timestamp falls at or before
// it.
func (r CatchupResult) shouldSkip(env Envelope) bool {
	if r.SkipBefore.IsZero() {
		return false
	}
	return !env.Timestamp.After(r.SkipBefore)
}

// CatchupStrategy runs a bulk recovery pass when a CatchupCondition fires,
// and reports how far it advanced so the executor can skip already-handled
// events.
type CatchupStrategy interface {
	Catchup(ctx context.Context, proc EventProcessor) (CatchupResult, error)
}

// NoCatchup is a no-op strategy: paired with NeverCatchup, or used where a
// processor has no efficient bulk recovery path and must just grind
// through its normal batch loop.
type NoCatchup struct{}

func (NoCatchup) Catchup(ctx context.Context, proc EventProcessor) (CatchupResult, error) {
	return CatchupResult{}, nil
}

// ReplayAllEvents rebuilds a processor's state by replaying the entire
// event history from the beginning through an EventReader, handling every
// event synchronously, and reports the timestamp of the last event it
// dispatched as the new skip window.
type ReplayAllEvents struct {
	Reader    EventReader
	BatchSize int
}

func (s ReplayAllEvents) Catchup(ctx context.Context, proc EventProcessor) (CatchupResult, error) {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 256
	}
	var lastSeq int64
	var lastTimestamp time.Time
	cursor := int64(0)
	for {
		events, err := s.Reader.ReadAll(ctx, cursor, batchSize)
		if err != nil {
			return CatchupResult{}, err
		}
		if len(events) == 0 {
			break
		}
		for _, env := range events {
			if err := proc.handle(ctx, env); err != nil {
				return CatchupResult{}, err
			}
			lastSeq = env.GlobalSequence
			lastTimestamp = env.Timestamp
		}
		cursor = lastSeq
	}
	return CatchupResult{Ran: true, SkipBefore: lastTimestamp}, nil
}

// ProjectorFunc translates an aggregate of type A's current state into a
// running processor's own state. Used only by FromAggregateSnapshot, whose
// catchup source is the aggregates themselves rather than raw events.
type ProjectorFunc[A any, P any] func(ctx context.Context, agg *A, proc *P) error

// aggregateAcquirer is the slice of *Repository[A] that FromAggregateSnapshot
// needs: load one aggregate (snapshot plus tail replay) by id. Satisfied by
// *Repository[A] without any adapter.
type aggregateAcquirer[A any] interface {
	Acquire(ctx context.Context, aggregateID ID) (Aggregate, error)
}

// SnapshotCheckpoint is FromAggregateSnapshot's resumability record for one
// processor: which aggregate ids it has already projected, the maximum
// event timestamp seen among them, and how many it has processed in total.
// Persisted through a CheckpointStore so a restarted catchup pass skips
// aggregates it already handled instead of starting over.
type SnapshotCheckpoint struct {
	ProcessedIDs map[ID]bool
	MaxTimestamp time.Time
	Count        int64
}

// CheckpointStore persists a FromAggregateSnapshot catchup's
// SnapshotCheckpoint, keyed by processor name. Normal batch processing
// carries no persisted checkpoint of its own: that state lives entirely in
// the Subscription each processor reads from.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, processorName string) (SnapshotCheckpoint, error)
	SaveCheckpoint(ctx context.Context, processorName string, checkpoint SnapshotCheckpoint) error
}

// FromAggregateSnapshot seeds a processor from the current state of every
// aggregate of type A via Projector, rather than replaying raw events, then
// lets the executor resume normal consumption from the skip window this
// reports. Resumable across restarts: aggregates already projected are
// recorded in a SnapshotCheckpoint and skipped on the next run.
type FromAggregateSnapshot[A any, P any] struct {
	ProcessorName string
	Repository    aggregateAcquirer[A]
	Snapshots     SnapshotStore
	Checkpoints   CheckpointStore
	Projector     ProjectorFunc[A, P]

	// PersistEvery overrides how many aggregates pass between checkpoint
	// saves during one run; 0 means the default of 100.
	PersistEvery int
}

func (s FromAggregateSnapshot[A, P]) Catchup(ctx context.Context, proc EventProcessor) (CatchupResult, error) {
	typedProc, ok := proc.(*P)
	if !ok {
		return CatchupResult{}, fmt.Errorf("cqrskit: FromAggregateSnapshot processor is %T, want %T", proc, typedProc)
	}

	checkpoint, err := s.Checkpoints.LoadCheckpoint(ctx, s.ProcessorName)
	if err != nil {
		return CatchupResult{}, err
	}
	if checkpoint.ProcessedIDs == nil {
		checkpoint.ProcessedIDs = make(map[ID]bool)
	}

	ids, err := s.Snapshots.ListAggregateIDsByType(ctx, typeOf[A]().String())
	if err != nil {
		return CatchupResult{}, err
	}

	persistEvery := s.PersistEvery
	if persistEvery <= 0 {
		persistEvery = 100
	}

	sinceSave := 0
	for _, id := range ids {
		if checkpoint.ProcessedIDs[id] {
			continue
		}

		agg, err := s.Repository.Acquire(ctx, id)
		if err != nil {
			return CatchupResult{}, err
		}
		typedAgg, ok := agg.(*A)
		if !ok {
			return CatchupResult{}, fmt.Errorf("cqrskit: FromAggregateSnapshot acquired %T, want %T", agg, typedAgg)
		}
		if err := s.Projector(ctx, typedAgg, typedProc); err != nil {
			return CatchupResult{}, err
		}

		checkpoint.ProcessedIDs[id] = true
		checkpoint.Count++
		if t := agg.LastEventTime(); t.After(checkpoint.MaxTimestamp) {
			checkpoint.MaxTimestamp = t
		}

		sinceSave++
		if sinceSave >= persistEvery {
			if err := s.Checkpoints.SaveCheckpoint(ctx, s.ProcessorName, checkpoint); err != nil {
				return CatchupResult{}, err
			}
			sinceSave = 0
		}
	}

	if err := s.Checkpoints.SaveCheckpoint(ctx, s.ProcessorName, checkpoint); err != nil {
		return CatchupResult{}, err
	}

	return CatchupResult{Ran: true, SkipBefore: checkpoint.MaxTimestamp}, nil
}
