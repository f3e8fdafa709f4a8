package middleware

import (
	"context"
	"errors"
	"strings"

	"carchat/internal/app/commands"
	"carchat/internal/app/queries"
)

// ErrActorMissing is returned when a message that acts on behalf of someone carries no identity.
var ErrActorMissing = errors.New("middleware: actor identity missing")

// ActorScoped is implemented by commands and queries issued on behalf of a participant.
type ActorScoped interface {
	ActorID() string
}

func RequireActor() CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := checkActor(cmd); err != nil {
				return nil, err
			}
			return nextFn(ctx, cmd)
		})
	}
}

func QueryRequireActor() QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := checkActor(q); err != nil {
				return nil, err
			}
			return nextFn(ctx, q)
		})
	}
}

func checkActor(message any) error {
	scoped, ok := message.(ActorScoped)
	if !ok {
		return nil
	}
	if strings.TrimSpace(scoped.ActorID()) == "" {
		return ErrActorMissing
	}
	return nil
}
