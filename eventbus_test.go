package cqrskit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storememory "github.com/go-gadgets/cqrskit/stores/memory"
	inproc "github.com/go-gadgets/cqrskit/transport/inproc"
)

// TestEventBusPublishEventsDeliversSynchronously checks spec scenario S4's
// transport half: with SynchronousDelivery, a subscriber sees a published
// event as soon as PublishEvents returns, with no polling required.
func TestEventBusPublishEventsDeliversSynchronously(t *testing.T) {
	store := storememory.NewStore()
	transport := inproc.New()
	defer transport.Close(context.Background())
	bus := NewEventBus(store, nil, transport, SynchronousDelivery{})

	ctx := context.Background()
	sub, err := transport.Subscribe(ctx, nil)
	require.NoError(t, err)
	defer sub.Close(ctx)

	aggregateID := NewID()
	env := Envelope{
		EventMeta: EventMeta{ID: NewID(), AggregateID: aggregateID, SequenceNumber: 1, Timestamp: time.Now().UTC()},
		Data:      AccountOpened{Owner: "ada"},
	}
	require.NoError(t, bus.PublishEvents(ctx, aggregateID, 0, []Envelope{env}))

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	received, err := sub.Next(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, aggregateID, received.AggregateID)
	assert.Equal(t, AccountOpened{Owner: "ada"}, received.Data)
}

// TestEventBusPublishEventsSavesEvenWithoutTransport checks that a nil
// transport/delivery pair degrades PublishEvents to a pure store write,
// which is the default for an aggregate nothing subscribes to.
func TestEventBusPublishEventsSavesEvenWithoutTransport(t *testing.T) {
	store := storememory.NewStore()
	bus := NewEventBus(store, nil, nil, nil)
	ctx := context.Background()

	aggregateID := NewID()
	env := Envelope{
		EventMeta: EventMeta{ID: NewID(), AggregateID: aggregateID, SequenceNumber: 1, Timestamp: time.Now().UTC()},
		Data:      AccountOpened{Owner: "ada"},
	}
	require.NoError(t, bus.PublishEvents(ctx, aggregateID, 0, []Envelope{env}))

	loaded, err := bus.LoadEvents(ctx, aggregateID, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, AccountOpened{Owner: "ada"}, loaded[0].Data)
}

// TestEventBusLoadEventsRewritesOnEagerUpcast checks that LoadEvents
// persists the upcast result back to the store when the pipeline's
// strategy calls for it, so later loads no longer need the original
// upcaster registered.
func TestEventBusLoadEventsRewritesOnEagerUpcast(t *testing.T) {
	store := storememory.NewStore()
	pipeline := NewUpcastingPipeline(threeVersionUpcasters(), EagerUpcastingStrategy{})
	bus := NewEventBus(store, pipeline, nil, nil)
	ctx := context.Background()

	aggregateID := NewID()
	env := Envelope{
		EventMeta: EventMeta{ID: NewID(), AggregateID: aggregateID, SequenceNumber: 1, Timestamp: time.Now().UTC()},
		Data:      accountOpenedV1{OwnerName: "ada"},
	}
	require.NoError(t, store.SaveEvents(ctx, aggregateID, 0, []Envelope{env}))

	loaded, err := bus.LoadEvents(ctx, aggregateID, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.IsType(t, accountOpenedV3{}, loaded[0].Data)

	rawStore, err := store.LoadEvents(ctx, aggregateID, 0)
	require.NoError(t, err)
	assert.IsType(t, accountOpenedV3{}, rawStore[0].Data, "an eager strategy must rewrite the store, not just the caller's copy")
}

// TestEventBusPublishEventsRejectsConcurrentWrite checks that a version
// mismatch is surfaced to the caller as a ConcurrencyFault rather than
// silently overwriting the store.
func TestEventBusPublishEventsRejectsConcurrentWrite(t *testing.T) {
	store := storememory.NewStore()
	bus := NewEventBus(store, nil, nil, nil)
	ctx := context.Background()
	aggregateID := NewID()

	first := Envelope{EventMeta: EventMeta{ID: NewID(), AggregateID: aggregateID, SequenceNumber: 1, Timestamp: time.Now().UTC()}, Data: AccountOpened{Owner: "ada"}}
	require.NoError(t, bus.PublishEvents(ctx, aggregateID, 0, []Envelope{first}))

	stale := Envelope{EventMeta: EventMeta{ID: NewID(), AggregateID: aggregateID, SequenceNumber: 1, Timestamp: time.Now().UTC()}, Data: AccountOpened{Owner: "grace"}}
	err := bus.PublishEvents(ctx, aggregateID, 0, []Envelope{stale})
	require.Error(t, err)
	_, ok := IsConcurrencyFault(err)
	assert.True(t, ok)
}
