package cqrskit

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Aggregate is the interface every aggregate root satisfies: something that
// can handle a command, apply an event to itself, and report its identity
// and version for the repository/store machinery.
type Aggregate interface {
	AggregateID() ID
	Version() int64
	LastEventTime() time.Time
	UncommittedEvents() []Envelope
	ClearUncommittedEvents()
	replayOne(ctx context.Context, e Envelope) error
	setIdentity(id ID, version int64)
}

// AggregateRoot is the generalized base every aggregate embeds, mirroring
// the teacher's AggregateBase: it owns version tracking, the uncommitted
// event buffer, and the command/apply dispatch tables, but in place of the
// teacher's reflection-built method-name scan it uses a pair of per-type
// Routers populated by small Register calls at construction time, per the
// framework's build-time mapping table design.
//
// S is the concrete aggregate type embedding AggregateRoot[S]; it is passed
// to command handlers and appliers so they receive *S rather than the base.
type AggregateRoot[S any] struct {
	id               ID
	version          int64
	lastEventTime            time.Time
	lastSnapshotTime         time.Time
	lastSnapshotVersionField int64

	uncommitted []Envelope

	commands *Router
	appliers *Router

	self *S
}

// Init wires the embedding aggregate's self-pointer into its base. Call
// this once, immediately after constructing the concrete aggregate, before
// registering any command handlers or appliers:
//
//	func NewAccount() *Account {
//	    a := &Account{}
//	    a.Init(a)
//	    RegisterCommandHandler(a, (*Account).handleOpen)
//	    RegisterApplier(a, (*Account).applyOpened)
//	    return a
//	}
func (a *AggregateRoot[S]) Init(self *S) {
	a.self = self
	a.commands = NewRouter("aggregate command router", DefaultRaise)
	a.appliers = NewRouter("aggregate event applier", DefaultIgnore)
}

func (a *AggregateRoot[S]) AggregateID() ID             { return a.id }
func (a *AggregateRoot[S]) Version() int64              { return a.version }

// LastEventTime returns the timestamp of the most recent event applied to
// this aggregate, whether emitted just now or replayed from history. Zero
// if the aggregate has no events yet. Used by FromAggregateSnapshot to
// track how far a catchup pass has advanced.
func (a *AggregateRoot[S]) LastEventTime() time.Time { return a.lastEventTime }

func (a *AggregateRoot[S]) setIdentity(id ID, version int64) {
	a.id = id
	a.version = version
}

// UncommittedEvents returns the events emitted since the last
// ClearUncommittedEvents call.
func (a *AggregateRoot[S]) UncommittedEvents() []Envelope {
	return a.uncommitted
}

// ClearUncommittedEvents empties the uncommitted-event buffer. The
// repository calls this once it has durably saved them.
func (a *AggregateRoot[S]) ClearUncommittedEvents() {
	a.uncommitted = nil
}

// ChangedSince reports whether any events have been applied since the given
// version.
func (a *AggregateRoot[S]) ChangedSince(version int64) bool {
	return a.version > version
}

// MarkSnapshot records that a snapshot was just taken at the current
// version and time.
func (a *AggregateRoot[S]) MarkSnapshot() {
	a.markSnapshotVersion(a.version)
}

// lastSnapshotVersion and markSnapshotVersion implement snapshotVersionMarker
// so Repository.Save can tell how many versions have passed since the last
// snapshot without the concrete aggregate needing to track it itself.
func (a *AggregateRoot[S]) lastSnapshotVersion() int64 {
	return a.lastSnapshotVersionField
}

func (a *AggregateRoot[S]) markSnapshotVersion(v int64) {
	a.lastSnapshotVersionField = v
	a.lastSnapshotTime = time.Now().UTC()
}

// CommandHandlerFunc handles a command against an aggregate of type *S,
// mutating it via calls to Emit. It does not return events directly: per
// the framework's event-sourced domain model, handlers cause state changes
// only by emitting, never by returning a value the framework then applies
// on the handler's behalf.
type CommandHandlerFunc[S any, C Command] func(agg *S, ctx context.Context, cmd C) error

// RegisterCommandHandler installs handler as the handler for command type C
// on agg. Panics if a handler for C is already registered.
func RegisterCommandHandler[S any, C Command](agg *AggregateRoot[S], handler CommandHandlerFunc[S, C]) {
	agg.commands.register(typeOf[C](), false, handler)
}

// ApplierFunc replays a single previously-emitted event of payload type T
// against the aggregate's state. Appliers are pure state mutation: they
// must not emit further events, call out to other aggregates, or fail for
// reasons other than unrecoverable data corruption, since they run during
// both normal Emit and full-stream replay.
type ApplierFunc[S any, T any] func(agg *S, data T)

// RegisterApplier installs applier as the state-transition function for
// event payload type T on agg.
func RegisterApplier[S any, T any](agg *AggregateRoot[S], applier ApplierFunc[S, T]) {
	agg.appliers.register(typeOf[T](), false, func(data T) {
		applier(agg.self, data)
	})
}

// Handle routes cmd to its registered handler and runs it. A miss is an
// error: every command dispatched to an aggregate must have a handler.
func (a *AggregateRoot[S]) Handle(ctx context.Context, cmd Command) error {
	msgType := reflect.TypeOf(cmd)
	raw, _, found := a.commands.lookup(msgType)
	if !found {
		return a.commands.missError(msgType)
	}
	return invokeCommandHandler(ctx, a.self, raw, cmd)
}

// invokeCommandHandler exists only to let Handle stay free of a type switch
// over every possible CommandHandlerFunc[S, C] instantiation: the handler
// was stored as `any` by RegisterCommandHandler, so recovering the call
// requires reflecting on cmd's concrete type once. This happens once per
// dispatched command, not once per event, so its cost is negligible next to
// the command's own work.
func invokeCommandHandler[S any](ctx context.Context, agg *S, handler any, cmd Command) error {
	fn := reflect.ValueOf(handler)
	out := fn.Call([]reflect.Value{
		reflect.ValueOf(agg),
		reflect.ValueOf(ctx),
		reflect.ValueOf(cmd).Elem().Addr(),
	})
	if err, ok := out[0].Interface().(error); ok && err != nil {
		return err
	}
	return nil
}

// Emit stamps data as a new event, applies it to the aggregate's own state
// immediately, and appends it to the uncommitted buffer. This is the only
// way an aggregate's state should change: command handlers call Emit rather
// than returning events for the framework to apply, following the
// domain model this framework implements (handle() mutates by calling
// emit(), which both updates version/uncommitted_events and replays
// the event through apply() synchronously).
func Emit[S any, T any](ctx context.Context, agg *AggregateRoot[S], data T) {
	ec := ExecutionContextFrom(ctx)
	agg.version++
	env := Envelope{
		EventMeta: EventMeta{
			ID:             NewID(),
			AggregateID:    agg.id,
			SequenceNumber: agg.version,
			Timestamp:      time.Now().UTC(),
			CorrelationID:  ec.CorrelationID,
			CausationID:    ec.CommandID,
		},
		Data: data,
	}
	agg.uncommitted = append(agg.uncommitted, env)
	agg.lastEventTime = env.Timestamp
	agg.applyInternal(env)
}

func (a *AggregateRoot[S]) applyInternal(env Envelope) {
	msgType := reflect.TypeOf(env.Data)
	raw, _, found := a.appliers.lookup(msgType)
	if !found {
		return
	}
	fn := reflect.ValueOf(raw)
	fn.Call([]reflect.Value{reflect.ValueOf(env.Data)})
}

// replayOne applies a previously-stored event without touching the
// uncommitted buffer or bumping lastEventTime off the wall clock; used when
// reconstructing an aggregate from its history.
func (a *AggregateRoot[S]) replayOne(ctx context.Context, env Envelope) error {
	a.version = env.SequenceNumber
	a.lastEventTime = env.Timestamp
	a.applyInternal(env)
	return nil
}

// ReplayEvents reconstructs state by applying a full ordered history, used
// by the repository when no usable snapshot exists.
func ReplayEvents(ctx context.Context, agg Aggregate, events []Envelope) error {
	for _, env := range events {
		if err := agg.replayOne(ctx, env); err != nil {
			return fmt.Errorf("cqrskit: replay failed at sequence %d: %w", env.SequenceNumber, err)
		}
	}
	return nil
}
