package chat

import (
	"context"
	"log/slog"
	"time"

	"carchat/internal/app/commands"
	"carchat/internal/app/dto"
	handlersupport "carchat/internal/app/handlers/support"
	"carchat/internal/app/outbox"
	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/shared/events"
)

const markReadKey = "chat.conversation.mark_read"

type MarkReadCommand struct {
	ConversationID string
	ReaderID       string
}

func (c MarkReadCommand) Key() string { return markReadKey }

func (c MarkReadCommand) ActorID() string { return c.ReaderID }

// MarkReadHandler is the read-state tracker. A repeated call with nothing new transitions zero
// messages and emits no receipt.
type MarkReadHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Hooks      Hooks
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *MarkReadHandler) Handle(ctx context.Context, cmd MarkReadCommand) (*dto.MarkReadResult, error) {
	unit, execCtx, commit, cleanup, err := handlersupport.UnitFromContext(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	id := domainchat.ConversationID(cmd.ConversationID)
	conv, err := unit.Conversations().ByID(execCtx, id)
	if err != nil {
		return nil, err
	}
	sender, err := conv.Other(cmd.ReaderID)
	if err != nil {
		return nil, err
	}

	at := domainchat.Millis(now(h.Now))
	n, err := unit.Messages().MarkRead(execCtx, id, cmd.ReaderID, at)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		receipt := domainchat.MessagesRead{
			ConversationID: id,
			ReaderID:       cmd.ReaderID,
			SenderID:       sender,
			Count:          n,
			At:             at,
		}
		if err := outbox.RecordDomainEvents(execCtx, h.Outbox, encoder(h.Encoder), []events.DomainEvent{receipt}); err != nil {
			return nil, err
		}
	}

	if commit != nil {
		if err := commit(); err != nil {
			return nil, err
		}
	}
	hooks(h.Hooks).MessagesMarkedRead(n)
	if h.Logger != nil && n > 0 {
		h.Logger.Debug("messages marked read", "conversation_id", id, "reader_id", cmd.ReaderID, "count", n)
	}
	return &dto.MarkReadResult{ConversationID: cmd.ConversationID, Transitioned: n}, nil
}

var _ commands.Handler[MarkReadCommand, *dto.MarkReadResult] = (*MarkReadHandler)(nil)
