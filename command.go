package cqrskit

// Command is the marker interface implemented by every command type. It
// exists so APIs that accept "a command" can be written against an
// interface rather than `any`, matching the teacher's Command marker.
type Command interface {
	// commandMeta returns the embedded BaseCommand so the framework can
	// read/stamp identity and causal fields without reflection.
	commandMeta() *BaseCommand
}

// BaseCommand is the set of fields every command carries, per spec §3:
// a target aggregate id and a fresh command id, plus the correlation and
// causation ids the context-propagation middleware stamps in. Embed this
// in concrete command structs the way aggregates embed AggregateRoot.
//
//	type DepositMoney struct {
//	    cqrskit.BaseCommand
//	    Amount decimal.Decimal
//	}
type BaseCommand struct {
	CommandID     ID
	AggregateID   ID
	CorrelationID ID
	CausationID   ID

	// IdempotencyKey, if set, is consulted by the idempotency middleware:
	// a command whose key has already been recorded is skipped rather than
	// re-delivered to the handler.
	IdempotencyKey string
}

// commandMeta implements Command.
func (c *BaseCommand) commandMeta() *BaseCommand { return c }

// NewBaseCommand builds a BaseCommand targeting aggregateID with a freshly
// generated command id.
func NewBaseCommand(aggregateID ID) BaseCommand {
	return BaseCommand{
		CommandID:   NewID(),
		AggregateID: aggregateID,
	}
}

// HasIdempotencyKey reports whether the command declares a non-empty
// idempotency key.
func (c *BaseCommand) HasIdempotencyKey() bool {
	return c.IdempotencyKey != ""
}

// CommandMeta exposes a command's embedded BaseCommand to callers outside
// this package, such as middleware that needs to stamp correlation and
// causation ids before dispatch.
func CommandMeta(cmd Command) *BaseCommand {
	return cmd.commandMeta()
}
