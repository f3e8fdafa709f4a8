package middleware

import (
	"context"
	"time"

	"carchat/internal/app/commands"
	"carchat/internal/app/queries"
)

// Observer receives the outcome of every dispatched command or query.
type Observer interface {
	ObserveDispatch(kind, key string, took time.Duration, err error)
}

func ObserveCommands(o Observer) CommandMiddleware {
	if o == nil {
		panic("middleware: observer required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			o.ObserveDispatch("command", cmd.Key(), time.Since(start), err)
			return res, err
		})
	}
}

func ObserveQueries(o Observer) QueryMiddleware {
	if o == nil {
		panic("middleware: observer required")
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, q)
			o.ObserveDispatch("query", q.Key(), time.Since(start), err)
			return res, err
		})
	}
}
