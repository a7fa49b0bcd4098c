package cqrskit

import "context"

// EventTransport publishes committed events to subscribers, in-process or
// over an external broker. The event bus calls Publish after events are
// durably saved; it never blocks a command on transport delivery beyond
// what the configured DeliveryStrategy asks for.
type EventTransport interface {
	Publish(ctx context.Context, events []Envelope) error

	// Subscribe opens a Subscription receiving every event published from
	// this point forward whose payload type was registered under one of
	// topics. An empty topics list subscribes to everything.
	Subscribe(ctx context.Context, topics []EventType) (Subscription, error)

	Close(ctx context.Context) error
}

// Subscription is a single consumer's handle on a transport's event stream.
type Subscription interface {
	// Next blocks until the next event is available, ctx is cancelled, or
	// the subscription is closed, in which case it returns ErrEndOfStream.
	Next(ctx context.Context) (Envelope, error)

	// Depth reports how many events are currently buffered and waiting to
	// be delivered to this subscription, used by ProcessorExecutor to
	// measure Lag.UnprocessedCount. An approximation is acceptable: it
	// need only be good enough to decide whether a catchup pass is due.
	Depth() int

	Close(ctx context.Context) error
}

// DeliveryStrategy decides whether the event bus waits for transport
// delivery to complete before a command's save_events call returns.
type DeliveryStrategy interface {
	Deliver(ctx context.Context, transport EventTransport, events []Envelope) error
}

// SynchronousDelivery publishes and waits for Publish to return before the
// triggering command completes. Guarantees subscribers see every committed
// event in commit order at the cost of command latency.
type SynchronousDelivery struct{}

func (SynchronousDelivery) Deliver(ctx context.Context, transport EventTransport, events []Envelope) error {
	return transport.Publish(ctx, events)
}

// AsynchronousDelivery hands events to the transport on a separate
// goroutine and returns immediately. Delivery errors are reported to
// onError rather than returned to the command, since the command has
// already returned by the time they can occur. onError may be nil.
type AsynchronousDelivery struct {
	OnError func(err error)
}

func (d AsynchronousDelivery) Deliver(ctx context.Context, transport EventTransport, events []Envelope) error {
	go func() {
		// Detached from ctx deliberately: the triggering request's context
		// may already be cancelled by the time this goroutine runs.
		if err := transport.Publish(context.Background(), events); err != nil && d.OnError != nil {
			d.OnError(err)
		}
	}()
	return nil
}
