package cqrskit

import (
	"context"
	"reflect"
)

// EventBus composes an EventStore, an UpcastingPipeline, a transport, and a
// DeliveryStrategy into the single read/write surface a Repository uses.
// It owns the order of operations spec'd for both paths: writes upcast
// (only if the strategy calls for it), save, then deliver; reads load, then
// upcast, then optionally rewrite.
type EventBus struct {
	store     EventStore
	pipeline  *UpcastingPipeline
	transport EventTransport
	delivery  DeliveryStrategy
}

// NewEventBus builds an EventBus. pipeline, transport, and delivery may be
// nil: a nil pipeline upcasts nothing, a nil transport and delivery make
// PublishEvents a pure store write with no fan-out, which is a reasonable
// default for an aggregate whose events are never projected.
func NewEventBus(store EventStore, pipeline *UpcastingPipeline, transport EventTransport, delivery DeliveryStrategy) *EventBus {
	return &EventBus{store: store, pipeline: pipeline, transport: transport, delivery: delivery}
}

// LoadEvents loads an aggregate's stream after afterVersion and runs it
// through the upcasting pipeline's read path. If the strategy calls for
// rewriting and the store implements EventRewriter, the events whose
// payload type the upcast changed are rewritten in place at the same
// versions before being returned; a store without EventRewriter is left
// as it was.
func (b *EventBus) LoadEvents(ctx context.Context, aggregateID ID, afterVersion int64) ([]Envelope, error) {
	events, err := b.store.LoadEvents(ctx, aggregateID, afterVersion)
	if err != nil {
		return nil, err
	}
	if b.pipeline == nil || len(events) == 0 {
		return events, nil
	}
	upcast, err := b.pipeline.ReadUpcast(events)
	if err != nil {
		return nil, err
	}
	if b.pipeline.ShouldRewriteOnLoad() {
		if rewriter, ok := b.store.(EventRewriter); ok {
			var changed []Envelope
			for i, env := range upcast {
				if reflect.TypeOf(env.Data) != reflect.TypeOf(events[i].Data) {
					changed = append(changed, env)
				}
			}
			if len(changed) > 0 {
				if err := rewriter.RewriteEvents(ctx, aggregateID, changed); err != nil {
					return nil, err
				}
			}
		}
	}
	return upcast, nil
}

// PublishEvents upcasts events for the write path if configured, saves them
// with an optimistic concurrency check against expectedVersion, and
// delivers them through the transport per the configured DeliveryStrategy.
func (b *EventBus) PublishEvents(ctx context.Context, aggregateID ID, expectedVersion int64, events []Envelope) error {
	if len(events) == 0 {
		return nil
	}
	toSave := events
	if b.pipeline != nil {
		upcast, err := b.pipeline.WriteUpcast(events)
		if err != nil {
			return err
		}
		toSave = upcast
	}
	if err := b.store.SaveEvents(ctx, aggregateID, expectedVersion, toSave); err != nil {
		return err
	}
	if b.transport == nil || b.delivery == nil {
		return nil
	}
	return b.delivery.Deliver(ctx, b.transport, toSave)
}
