package chat

import (
	"log/slog"
	"time"

	"carchat/internal/app/commands"
	"carchat/internal/app/outbox"
	"carchat/internal/app/queries"
	"carchat/internal/app/uow"
)

// Dependencies is everything the chat handlers share.
type Dependencies struct {
	UoWFactory      uow.UoWFactory
	Outbox          outbox.Outbox
	Encoder         outbox.EventEncoder
	Resolver        *ContextResolver
	ConflictBackoff []time.Duration
	Hooks           Hooks
	Logger          *slog.Logger
	Now             func() time.Time
}

// Register binds every chat command and query to its handler.
func Register(cmdBus *commands.InMemoryBus, qBus *queries.InMemoryBus, deps Dependencies) {
	commands.RegisterHandler(cmdBus, ensureConversationKey, &EnsureConversationHandler{
		UoWFactory: deps.UoWFactory,
		Outbox:     deps.Outbox,
		Encoder:    deps.Encoder,
		Resolver:   deps.Resolver,
		Backoff:    deps.ConflictBackoff,
		Hooks:      deps.Hooks,
		Logger:     deps.Logger,
		Now:        deps.Now,
	})
	commands.RegisterHandler(cmdBus, sendMessageKey, &SendMessageHandler{
		UoWFactory: deps.UoWFactory,
		Outbox:     deps.Outbox,
		Encoder:    deps.Encoder,
		Hooks:      deps.Hooks,
		Logger:     deps.Logger,
		Now:        deps.Now,
	})
	commands.RegisterHandler(cmdBus, markReadKey, &MarkReadHandler{
		UoWFactory: deps.UoWFactory,
		Outbox:     deps.Outbox,
		Encoder:    deps.Encoder,
		Hooks:      deps.Hooks,
		Logger:     deps.Logger,
		Now:        deps.Now,
	})

	queries.RegisterHandler(qBus, listMessagesKey, &ListMessagesHandler{UoWFactory: deps.UoWFactory})
	queries.RegisterHandler(qBus, getConversationKey, &GetConversationHandler{UoWFactory: deps.UoWFactory, Resolver: deps.Resolver})
	queries.RegisterHandler(qBus, listConversationsKey, &ListConversationsHandler{
		UoWFactory: deps.UoWFactory,
		Resolver:   deps.Resolver,
		Logger:     deps.Logger,
	})
}
