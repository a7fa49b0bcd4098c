package cqrskit

import (
	"context"
	"reflect"
)

// EventProcessor consumes a global, ordered stream of events — typically to
// build a projection or drive a saga — independent of any one aggregate's
// stream. It is dispatched to through its own Router so a processor
// handles only the event types it registers for and silently ignores the
// rest.
type EventProcessor interface {
	// handle is called once per event the executor pulls, in stream order.
	// Implementations never see an event twice except across a catchup
	// replay.
	handle(ctx context.Context, env Envelope) error
}

// ProcessorBase is the base every concrete EventProcessor embeds, providing
// the Router-backed event-handler table in place of the teacher's
// reflection-based Consume/Handle method scan.
type ProcessorBase struct {
	events *Router
}

// Init sets up the processor's event router. Call once at construction,
// before registering any handlers.
func (p *ProcessorBase) Init() {
	p.events = NewRouter("event processor", DefaultIgnore)
}

// ProcessorHandlerFunc handles one event of payload type T for a processor
// of concrete type *S.
type ProcessorHandlerFunc[S any, T any] func(proc *S, ctx context.Context, event Event[T]) error

// RegisterProcessorHandler installs handler as the handler for event
// payload type T on proc.
func RegisterProcessorHandler[S any, T any](base *ProcessorBase, proc *S, handler ProcessorHandlerFunc[S, T]) {
	base.events.register(typeOf[T](), true, func(ctx context.Context, env Envelope) error {
		return handler(proc, ctx, wrapEnvelope[T](env))
	})
}

func (p *ProcessorBase) handle(ctx context.Context, env Envelope) error {
	raw, _, found := p.events.lookup(reflect.TypeOf(env.Data))
	if !found {
		return nil
	}
	fn := raw.(func(context.Context, Envelope) error)
	return fn(ctx, env)
}
