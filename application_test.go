package cqrskit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storememory "github.com/go-gadgets/cqrskit/stores/memory"
)

func newTestApplicationBuilder(t *testing.T) *Builder {
	t.Helper()
	store := storememory.NewStore()
	bus := NewEventBus(store, nil, nil, nil)
	registry := NewRepositoryConfigRegistry()
	repo := NewRepository[BankAccount](bus, registry, NewBankAccount)

	routes := NewCommandToAggregateMap()
	RegisterCommandRoute[*OpenAccount](routes, RepositoryAsAcquirer(repo))
	commands := NewCommandBus(DelegateToAggregate(routes))
	queries := NewQueryBus()
	return NewBuilder(commands, queries)
}

// TestBuilderBuildRejectsDuplicateProcessorNames checks that a
// misconfigured application with two processors sharing one name is
// rejected at Build time.
func TestBuilderBuildRejectsDuplicateProcessorNames(t *testing.T) {
	builder := newTestApplicationBuilder(t)
	executor := NewProcessorExecutor("balances", NeverCatchup{}, NoCatchup{})
	sub := subscribeEvents(t, nil)

	builder.AddProcessor("balances", executor, newBalanceProcessor(), sub)
	builder.AddProcessor("balances", executor, newBalanceProcessor(), sub)

	_, err := builder.Build()
	require.Error(t, err)
}

// TestApplicationRunStopsOnContextCancellation checks the normal shutdown
// path: cancelling the context Run was given stops every processor and
// Run returns nil, since cancellation is not itself a failure.
func TestApplicationRunStopsOnContextCancellation(t *testing.T) {
	builder := newTestApplicationBuilder(t)
	executor := NewProcessorExecutor("balances", NeverCatchup{}, NoCatchup{})
	sub := subscribeEvents(t, nil)
	builder.AddProcessor("balances", executor, newBalanceProcessor(), sub)

	app, err := builder.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx))
}

// TestApplicationRunPropagatesProcessorFailure checks that a processor
// handler error stops the whole application and surfaces through Run,
// rather than being silently absorbed.
func TestApplicationRunPropagatesProcessorFailure(t *testing.T) {
	builder := newTestApplicationBuilder(t)
	sub := subscribeEvents(t, seedEvents(1, time.Now().UTC()))
	proc := newBalanceProcessor()
	proc.failNext = true
	executor := NewProcessorExecutor("balances", NeverCatchup{}, NoCatchup{})
	builder.AddProcessor("balances", executor, proc, sub)

	app, err := builder.Build()
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balances")
}

// TestApplicationRunRejectsDoubleStart checks that calling Run twice on a
// still-running Application is a clear error instead of undefined
// behaviour from two goroutines racing over the same processor set.
func TestApplicationRunRejectsDoubleStart(t *testing.T) {
	builder := newTestApplicationBuilder(t)
	executor := NewProcessorExecutor("balances", NeverCatchup{}, NoCatchup{})
	sub := subscribeEvents(t, nil)
	builder.AddProcessor("balances", executor, newBalanceProcessor(), sub)

	app, err := builder.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Give Run a moment to flip the running flag before testing the
	// reentrancy guard.
	time.Sleep(20 * time.Millisecond)
	err = app.Run(context.Background())
	require.Error(t, err)

	cancel()
	require.NoError(t, <-done)
}

// TestApplicationShutdownStopsRunningProcessors checks that Shutdown
// cancels a running Application without requiring the caller to also
// cancel the context Run was started with.
func TestApplicationShutdownStopsRunningProcessors(t *testing.T) {
	builder := newTestApplicationBuilder(t)
	executor := NewProcessorExecutor("balances", NeverCatchup{}, NoCatchup{})
	sub := subscribeEvents(t, nil)
	builder.AddProcessor("balances", executor, newBalanceProcessor(), sub)

	app, err := builder.Build()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, app.Shutdown(context.Background()))
	require.NoError(t, <-done)
}
