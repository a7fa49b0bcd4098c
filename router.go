package cqrskit

import (
	"fmt"
	"reflect"
)

// DefaultMode controls what a Router does when no handler is registered for
// a message's concrete type, per the per-registrant contract table in
// spec §4.1.
type DefaultMode int

const (
	// DefaultRaise makes a dispatch miss an error. Used for command
	// routers and query routers: an unhandled command or query is always
	// a programming error.
	DefaultRaise DefaultMode = iota

	// DefaultIgnore makes a dispatch miss silently do nothing. Used for
	// event appliers and event-processor event routers, where
	// "not registered" legitimately means
	// "not interested in this message".
	DefaultIgnore
)

// Router is a type-directed dispatch table: it maps a message's concrete Go
// type to exactly one registered handler, built once via Register calls and
// consulted on every dispatched message thereafter. Matching is by exact
// type only, never by interface or subtype satisfaction.
//
// Router itself is agnostic to the handler's function shape; it stores
// handlers as opaque values keyed by reflect.Type. The surface-specific
// Register*/Route helpers elsewhere in this package (for commands,
// appliers, processor events, and queries) each fix a single
// concrete function shape for the handlers they put into and take out of a
// given Router instance.
type Router struct {
	name     string
	mode     DefaultMode
	handlers map[reflect.Type]routerEntry
}

type routerEntry struct {
	handler      any
	wantsWrapper bool
}

// NewRouter creates an empty Router. name is used in ErrNoHandler messages;
// mode selects the dispatch-miss behaviour.
func NewRouter(name string, mode DefaultMode) *Router {
	return &Router{
		name:     name,
		mode:     mode,
		handlers: make(map[reflect.Type]routerEntry),
	}
}

// register installs handler for msgType. It panics if msgType already has a
// registered handler on this router: re-registering the same type on one
// class is a programming error, and per spec §4.1 must fail at build
// (registration) time rather than be silently overwritten or deferred to a
// dispatch-time ambiguity.
func (r *Router) register(msgType reflect.Type, wantsWrapper bool, handler any) {
	if _, exists := r.handlers[msgType]; exists {
		panic(fmt.Sprintf("cqrskit: %s already has a handler registered for %s", r.name, msgType))
	}
	r.handlers[msgType] = routerEntry{handler: handler, wantsWrapper: wantsWrapper}
}

// lookup returns the handler registered for msgType, whether it wants the
// envelope wrapper rather than the bare payload, and whether a match was
// found at all.
func (r *Router) lookup(msgType reflect.Type) (handler any, wantsWrapper bool, found bool) {
	entry, ok := r.handlers[msgType]
	if !ok {
		return nil, false, false
	}
	return entry.handler, entry.wantsWrapper, true
}

// missError builds the error a Route helper should return on a DefaultRaise
// miss; callers under DefaultIgnore never need this.
func (r *Router) missError(msgType reflect.Type) error {
	return ErrNoHandler{RouterName: r.name, MessageType: msgType.String()}
}

// typeOf returns the reflect.Type of T, including interface types, which
// reflect.TypeOf alone cannot do for a nil interface value.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
