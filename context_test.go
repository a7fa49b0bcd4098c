package cqrskit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExecutionContextFromReturnsZeroValueWhenAbsent checks that reading
// an execution context off a bare context.Context returns the empty
// value rather than panicking.
func TestExecutionContextFromReturnsZeroValueWhenAbsent(t *testing.T) {
	ec := ExecutionContextFrom(context.Background())
	assert.True(t, ec.IsEmpty())
}

// TestWithExecutionContextRoundTrips checks that a stored execution
// context is recovered unchanged.
func TestWithExecutionContextRoundTrips(t *testing.T) {
	want := ExecutionContext{CorrelationID: NewID(), CausationID: NewID(), CommandID: NewID()}
	ctx := WithExecutionContext(context.Background(), want)
	assert.Equal(t, want, ExecutionContextFrom(ctx))
}

// TestEnsureCorrelationMintsWhenAbsent checks that EnsureCorrelation
// generates a fresh, self-referencing correlation/causation pair when none
// is present.
func TestEnsureCorrelationMintsWhenAbsent(t *testing.T) {
	ec := EnsureCorrelation(ExecutionContext{})
	assert.False(t, ec.CorrelationID.IsNil())
	assert.Equal(t, ec.CorrelationID, ec.CausationID)
}

// TestEnsureCorrelationPreservesExisting checks that EnsureCorrelation
// leaves an already-correlated context untouched.
func TestEnsureCorrelationPreservesExisting(t *testing.T) {
	existing := ExecutionContext{CorrelationID: NewID(), CausationID: NewID()}
	ec := EnsureCorrelation(existing)
	assert.Equal(t, existing, ec)
}

// TestForCommandSetsCommandIDPreservesCorrelation checks ForCommand's
// documented behaviour.
func TestForCommandSetsCommandIDPreservesCorrelation(t *testing.T) {
	base := ExecutionContext{CorrelationID: NewID()}
	commandID := NewID()
	derived := base.ForCommand(commandID)
	assert.Equal(t, base.CorrelationID, derived.CorrelationID)
	assert.Equal(t, commandID, derived.CommandID)
}

// TestForEventClearsCommandIDSetsCausation checks ForEvent's documented
// behaviour: correlation carries forward, causation becomes the event id,
// and command id is cleared since an event handler is not inside a
// command dispatch.
func TestForEventClearsCommandIDSetsCausation(t *testing.T) {
	base := ExecutionContext{CorrelationID: NewID(), CommandID: NewID()}
	eventID := NewID()
	derived := base.ForEvent(eventID)
	assert.Equal(t, base.CorrelationID, derived.CorrelationID)
	assert.Equal(t, eventID, derived.CausationID)
	assert.True(t, derived.CommandID.IsNil())
}

// TestEmitStampsCorrelationAndCausationFromContext checks property 4 at
// the aggregate boundary: an event emitted under an ExecutionContext
// carries that context's correlation id, and its causation id is the
// command id that triggered it.
func TestEmitStampsCorrelationAndCausationFromContext(t *testing.T) {
	correlation := NewID()
	commandID := NewID()
	ctx := WithExecutionContext(context.Background(), ExecutionContext{CorrelationID: correlation, CommandID: commandID})

	account := NewBankAccount()
	account.setIdentity(NewID(), 0)
	Emit(ctx, &account.AggregateRoot, AccountOpened{Owner: "ada"})

	events := account.UncommittedEvents()
	assert.Len(t, events, 1)
	assert.Equal(t, correlation, events[0].CorrelationID)
	assert.Equal(t, commandID, events[0].CausationID)
}
