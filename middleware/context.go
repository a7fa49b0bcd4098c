package middleware

import (
	"context"

	"github.com/go-gadgets/cqrskit"
)

// ContextPropagation is the outermost command middleware an application
// should install: it ensures every command carries a correlation id
// (minting one if the caller didn't supply it, exactly like
// EnsureCorrelation), stamps the command's own CorrelationID/CausationID
// fields from the execution context, and makes that context available to
// everything further down the chain and to the aggregate's Emit calls.
func ContextPropagation() cqrskit.CommandMiddleware {
	return func(next cqrskit.CommandHandler) cqrskit.CommandHandler {
		return func(ctx context.Context, cmd cqrskit.Command) error {
			ec := cqrskit.EnsureCorrelation(cqrskit.ExecutionContextFrom(ctx))
			ec = ec.ForCommand(commandID(cmd))

			stampCommand(cmd, ec)

			return next(cqrskit.WithExecutionContext(ctx, ec), cmd)
		}
	}
}

// commandID and stampCommand read/write a command's BaseCommand fields
// through the package-level reflection-free accessor cqrskit exposes for
// this purpose.
func commandID(cmd cqrskit.Command) cqrskit.ID {
	return cqrskit.CommandMeta(cmd).CommandID
}

func stampCommand(cmd cqrskit.Command, ec cqrskit.ExecutionContext) {
	meta := cqrskit.CommandMeta(cmd)
	meta.CorrelationID = ec.CorrelationID
	meta.CausationID = ec.CausationID
}
