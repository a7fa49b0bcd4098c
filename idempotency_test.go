package cqrskit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	idempotencymemory "github.com/go-gadgets/cqrskit/idempotency/memory"
)

// TestIdempotencyMiddlewareSkipsSeenKey checks spec scenario S4's
// idempotency half: a command whose IdempotencyKey was already recorded
// is skipped rather than re-dispatched to the next handler.
func TestIdempotencyMiddlewareSkipsSeenKey(t *testing.T) {
	store := idempotencymemory.NewStore()
	calls := 0
	chain := IdempotencyMiddleware(store)(func(ctx context.Context, cmd Command) error {
		calls++
		return nil
	})

	cmd := &OpenAccount{BaseCommand: NewBaseCommand(NewID()), Owner: "ada"}
	cmd.IdempotencyKey = "dedupe-key"

	require.NoError(t, chain(context.Background(), cmd))
	require.NoError(t, chain(context.Background(), cmd))
	assert.Equal(t, 1, calls, "the second delivery of the same idempotency key must be skipped")
}

// TestIdempotencyMiddlewarePassesThroughWithoutKey checks that a command
// with no idempotency key set is always dispatched, since there is
// nothing to deduplicate against.
func TestIdempotencyMiddlewarePassesThroughWithoutKey(t *testing.T) {
	store := idempotencymemory.NewStore()
	calls := 0
	chain := IdempotencyMiddleware(store)(func(ctx context.Context, cmd Command) error {
		calls++
		return nil
	})

	cmd := &OpenAccount{BaseCommand: NewBaseCommand(NewID()), Owner: "ada"}
	require.NoError(t, chain(context.Background(), cmd))
	require.NoError(t, chain(context.Background(), cmd))
	assert.Equal(t, 2, calls)
}

// TestIdempotencyMiddlewareDistinctKeysBothRun checks that two different
// idempotency keys are independent.
func TestIdempotencyMiddlewareDistinctKeysBothRun(t *testing.T) {
	store := idempotencymemory.NewStore()
	calls := 0
	chain := IdempotencyMiddleware(store)(func(ctx context.Context, cmd Command) error {
		calls++
		return nil
	})

	first := &OpenAccount{BaseCommand: NewBaseCommand(NewID()), Owner: "ada"}
	first.IdempotencyKey = "key-1"
	second := &OpenAccount{BaseCommand: NewBaseCommand(NewID()), Owner: "grace"}
	second.IdempotencyKey = "key-2"

	require.NoError(t, chain(context.Background(), first))
	require.NoError(t, chain(context.Background(), second))
	assert.Equal(t, 2, calls)
}
