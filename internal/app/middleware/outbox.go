package middleware

import (
	"context"

	"carchat/internal/app/commands"
	"carchat/internal/app/outbox"
)

// OutboxFlush hands recorded events to delivery once the command has committed.
// It must sit outside Transaction in the chain.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			// delivery problems are logged by the outbox and never fail a committed command
			_ = box.Flush(ctx)
			return res, nil
		})
	}
}
