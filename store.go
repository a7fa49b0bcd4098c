package cqrskit

import "context"

// EventStore is the durable, append-only log of events per aggregate.
// Implementations must enforce optimistic concurrency: SaveEvents fails
// with a ConcurrencyFault if expectedVersion does not match the store's
// recorded version for aggregateID at the time of the write.
type EventStore interface {
	// LoadEvents returns events for aggregateID with SequenceNumber greater
	// than afterVersion, in ascending sequence order. afterVersion of 0
	// loads the full stream.
	LoadEvents(ctx context.Context, aggregateID ID, afterVersion int64) ([]Envelope, error)

	// SaveEvents appends events to aggregateID's stream. expectedVersion
	// must equal the aggregate's version before these events were applied;
	// events[i].SequenceNumber must be expectedVersion+i+1. Implementations
	// must perform the compare-and-append atomically with respect to other
	// writers of the same aggregate.
	SaveEvents(ctx context.Context, aggregateID ID, expectedVersion int64, events []Envelope) error

	// CurrentVersion returns the highest SequenceNumber stored for
	// aggregateID, or 0 if the aggregate has no events.
	CurrentVersion(ctx context.Context, aggregateID ID) (int64, error)
}

// EventRewriter is implemented by an EventStore that supports overwriting
// already-committed events in place, matched by (aggregate_id,
// sequence_number), preserving their identity and ordering. Only the
// eager upcasting strategy needs this: EventBus.LoadEvents calls it to
// persist an upcast result back to the store so later loads skip the
// upcast work. A store need not implement it if eager upcasting is never
// used against it.
type EventRewriter interface {
	RewriteEvents(ctx context.Context, aggregateID ID, events []Envelope) error
}

// EventReader supports catchup strategies that consume the store's full,
// cross-aggregate event history in commit order rather than one aggregate's
// stream. Not every EventStore needs to support this; stores used only
// behind a Repository need not implement it. Lag measurement during normal
// processing comes from Subscription.Depth(), not from an EventReader.
type EventReader interface {
	// ReadAll returns up to limit events with a global sequence greater
	// than afterGlobalSequence, in the order they were committed.
	ReadAll(ctx context.Context, afterGlobalSequence int64, limit int) ([]Envelope, error)
}
