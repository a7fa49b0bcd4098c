package cqrskit

import (
	"context"
	"reflect"
)

// QueryHandlerFunc answers a query of type Q with a result of type R. Query
// handlers are pure reads: they must not mutate aggregate state.
type QueryHandlerFunc[Q Query, R any] func(ctx context.Context, q Q) (R, error)

// QueryBus dispatches queries to their registered handler by the query's
// concrete type, mirroring CommandBus but returning a typed result instead
// of only an error.
type QueryBus struct {
	router *Router
}

// NewQueryBus creates an empty QueryBus. An unhandled query type is always
// an error: there is no silent-ignore mode for queries.
func NewQueryBus() *QueryBus {
	return &QueryBus{router: NewRouter("query bus", DefaultRaise)}
}

// RegisterQueryHandler installs handler for query type Q, answering with R.
func RegisterQueryHandler[Q Query, R any](bus *QueryBus, handler QueryHandlerFunc[Q, R]) {
	bus.router.register(typeOf[Q](), false, handler)
}

// dispatch routes q to its handler and returns the typed result. Callers
// must know R to receive a usable value; use the package-level generic
// Dispatch function below when the caller can name R directly.
func (bus *QueryBus) dispatch(ctx context.Context, q Query) (any, error) {
	msgType := reflect.TypeOf(q)
	raw, _, found := bus.router.lookup(msgType)
	if !found {
		return nil, bus.router.missError(msgType)
	}
	fn := reflect.ValueOf(raw)
	out := fn.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(q).Elem().Addr()})
	var err error
	if e, ok := out[1].Interface().(error); ok && e != nil {
		err = e
	}
	return out[0].Interface(), err
}

// Dispatch routes q through bus and asserts the result to R, the type the
// caller expects back given q's registration.
func Dispatch[R any](ctx context.Context, bus *QueryBus, q Query) (R, error) {
	raw, err := bus.dispatch(ctx, q)
	if err != nil {
		var zero R
		return zero, err
	}
	return raw.(R), nil
}
