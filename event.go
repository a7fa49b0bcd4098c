package cqrskit

import "time"

// EventType is a qualified name identifying the shape of an event payload.
// It is derived from the Go type name of the payload struct the event was
// registered with, in the style of the teacher's EventType string-alias.
type EventType string

// EventMeta carries the immutable metadata that accompanies every event
// regardless of its payload: identity, ordering, timing, and the
// correlation/causation chain it belongs to.
type EventMeta struct {
	// ID uniquely identifies this event.
	ID ID

	// AggregateID is the aggregate this event belongs to.
	AggregateID ID

	// SequenceNumber is the 1-based, strictly increasing position of this
	// event within its aggregate's stream.
	SequenceNumber int64

	// GlobalSequence is the 1-based, strictly increasing position of this
	// event across every aggregate's stream combined, assigned by the
	// EventStore at commit time. EventReader implementations page and
	// checkpoint against this field rather than SequenceNumber, since two
	// different aggregates' streams both start their SequenceNumber at 1.
	GlobalSequence int64

	// Timestamp is the UTC time the event was emitted.
	Timestamp time.Time

	// CorrelationID ties this event to the logical operation it is part
	// of. Zero (ID.IsNil()) means no correlation was active when it was
	// emitted.
	CorrelationID ID

	// CausationID is the id of whatever directly caused this event: the
	// command_id of the command that emitted it.
	CausationID ID
}

// Envelope is the untyped, storage/transport-facing representation of an
// event: EventMeta plus an opaque payload. Event stores, the upcasting
// pipeline, and transports all operate on Envelope, since they must be able
// to hold events of every registered payload type uniformly. An Envelope is
// created only by Aggregate.Emit or by the upcasting pipeline (which
// preserves everything but Data).
type Envelope struct {
	EventMeta
	Data any
}

// Event is the typed wrapper a processor/projection event handler may ask
// for instead of the bare payload, when it needs metadata (timestamp,
// correlation id, sequence number) alongside the data. This is the Go
// expression of the framework's generic Event<T> wrapper.
type Event[T any] struct {
	EventMeta
	Data T
}

// wrapEnvelope builds a typed Event[T] wrapper from an untyped Envelope.
// Panics if the envelope's Data is not assignable to T; callers only invoke
// this once the router has already matched T against the envelope's
// concrete payload type, so the assertion always succeeds in practice.
func wrapEnvelope[T any](e Envelope) Event[T] {
	return Event[T]{
		EventMeta: e.EventMeta,
		Data:      e.Data.(T),
	}
}
