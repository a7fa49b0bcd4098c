package cqrskit

import (
	"context"
	"reflect"
)

// CommandHandler is the terminal step of a command bus's middleware chain:
// whatever actually executes a command once every middleware has run.
type CommandHandler func(ctx context.Context, cmd Command) error

// CommandMiddleware wraps a CommandHandler with cross-cutting behaviour. It
// receives the command and the next handler in the chain, and decides
// whether, when, and how to call it.
type CommandMiddleware func(next CommandHandler) CommandHandler

// CommandBus dispatches commands through a fixed middleware chain ending in
// a root handler that, by default, delegates to whichever aggregate
// repository is registered for the command's target aggregate type.
type CommandBus struct {
	chain CommandHandler
}

// NewCommandBus builds a CommandBus. root is the terminal handler; normally
// this is a DelegateToAggregate built from a CommandToAggregateMap.
// middleware is applied so that the first entry ends up outermost: it sees
// the command before any other middleware and sees the final result last,
// matching the fold used by the framework this implements (each
// middleware wraps what follows it, built right-to-left so index 0 is the
// outermost layer).
func NewCommandBus(root CommandHandler, middleware ...CommandMiddleware) *CommandBus {
	chain := root
	for i := len(middleware) - 1; i >= 0; i-- {
		chain = middleware[i](chain)
	}
	return &CommandBus{chain: chain}
}

// Dispatch runs cmd through the full middleware chain.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) error {
	return b.chain(ctx, cmd)
}

// AggregateHandle is the minimal surface DelegateToAggregate needs from an
// acquired aggregate: something that can handle a command. Aggregate
// already satisfies this.
type AggregateHandle interface {
	Handle(ctx context.Context, cmd Command) error
}

// AggregateAcquirer is the minimal surface DelegateToAggregate needs from a
// Repository[A], type-erased so CommandToAggregateMap can hold repositories
// for different aggregate types in one map. *Repository[A] satisfies this
// via a small adapter (see RepositoryAsAcquirer).
type AggregateAcquirer interface {
	Acquire(ctx context.Context, aggregateID ID) (Aggregate, error)
	Save(ctx context.Context, agg Aggregate) error
}

// RepositoryAsAcquirer type-erases a *Repository[A] into an
// AggregateAcquirer for storage in a CommandToAggregateMap.
func RepositoryAsAcquirer[A any](repo *Repository[A]) AggregateAcquirer {
	return repositoryAdapter[A]{repo}
}

type repositoryAdapter[A any] struct{ repo *Repository[A] }

func (a repositoryAdapter[A]) Acquire(ctx context.Context, id ID) (Aggregate, error) {
	return a.repo.Acquire(ctx, id)
}

func (a repositoryAdapter[A]) Save(ctx context.Context, agg Aggregate) error {
	return a.repo.Save(ctx, agg)
}

// CommandToAggregateMap routes a command's concrete type to the
// AggregateAcquirer responsible for its target aggregate, via a Router
// under the hood so registration enjoys the same duplicate-detection and
// miss handling as every other routing surface.
type CommandToAggregateMap struct {
	router *Router
}

// NewCommandToAggregateMap creates an empty map.
func NewCommandToAggregateMap() *CommandToAggregateMap {
	return &CommandToAggregateMap{router: NewRouter("command-to-aggregate map", DefaultRaise)}
}

// RegisterCommandRoute declares that commands of type C target aggregates
// reachable through acquirer.
func RegisterCommandRoute[C Command](m *CommandToAggregateMap, acquirer AggregateAcquirer) {
	m.router.register(typeOf[C](), false, acquirer)
}

func (m *CommandToAggregateMap) route(cmd Command) (AggregateAcquirer, error) {
	msgType := reflect.TypeOf(cmd)
	raw, _, found := m.router.lookup(msgType)
	if !found {
		return nil, m.router.missError(msgType)
	}
	return raw.(AggregateAcquirer), nil
}

// DelegateToAggregate is the default CommandBus root handler: it acquires
// the target aggregate via the CommandToAggregateMap, hands the command to
// it, and saves whatever events the handler emitted, even if the handler
// itself returned an error after emitting some events representing partial
// but valid state transitions (e.g. a domain fault recorded as an event).
// On success or on a handler error, Acquire+Handle+Save always completes
// the save step so partial progress is never silently dropped; the error
// is still returned to the caller either way.
func DelegateToAggregate(m *CommandToAggregateMap) CommandHandler {
	return func(ctx context.Context, cmd Command) error {
		acquirer, err := m.route(cmd)
		if err != nil {
			return err
		}
		aggregateID := cmd.commandMeta().AggregateID
		agg, err := acquirer.Acquire(ctx, aggregateID)
		if err != nil {
			return err
		}
		handleErr := agg.(AggregateHandle).Handle(ctx, cmd)
		if saveErr := acquirer.Save(ctx, agg); saveErr != nil {
			return saveErr
		}
		return handleErr
	}
}
