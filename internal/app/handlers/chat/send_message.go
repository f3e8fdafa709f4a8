package chat

import (
	"context"
	"log/slog"
	"time"

	"carchat/internal/app/commands"
	"carchat/internal/app/dto"
	handlersupport "carchat/internal/app/handlers/support"
	"carchat/internal/app/middleware"
	"carchat/internal/app/outbox"
	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/shared/events"
)

const sendMessageKey = "chat.message.send"

type SendMessageCommand struct {
	ConversationID  string
	SenderID        string
	Body            string
	MediaURL        string
	IdempotencyKeyV string
}

func (c SendMessageCommand) Key() string { return sendMessageKey }

func (c SendMessageCommand) ActorID() string { return c.SenderID }

// IdempotencyKey is scoped to the sender so keys from different clients cannot collide.
func (c SendMessageCommand) IdempotencyKey() string {
	if c.IdempotencyKeyV == "" {
		return ""
	}
	return sendMessageKey + ":" + c.SenderID + ":" + c.IdempotencyKeyV
}

func (c SendMessageCommand) ResultPrototype() any { return &dto.ChatMessage{} }

// SendMessageHandler appends a message and records the notification event in the same unit.
type SendMessageHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Hooks      Hooks
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (*dto.ChatMessage, error) {
	msg, err := domainchat.NewMessage(domainchat.NewMessageParams{
		ConversationID: domainchat.ConversationID(cmd.ConversationID),
		SenderID:       cmd.SenderID,
		Body:           cmd.Body,
		MediaURL:       cmd.MediaURL,
		CreatedAt:      now(h.Now),
	})
	if err != nil {
		return nil, err
	}

	unit, execCtx, commit, cleanup, err := handlersupport.UnitFromContext(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	conv, err := unit.Conversations().ByID(execCtx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	recipient, err := conv.Other(cmd.SenderID)
	if err != nil {
		return nil, err
	}

	if _, err := unit.Messages().Append(execCtx, msg); err != nil {
		return nil, err
	}

	sent := domainchat.MessageSent{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		RecipientID:    recipient,
		Preview:        msg.Preview(),
		MediaURL:       msg.MediaURL,
		At:             msg.CreatedAt,
	}
	if err := outbox.RecordDomainEvents(execCtx, h.Outbox, encoder(h.Encoder), []events.DomainEvent{sent}); err != nil {
		return nil, err
	}

	if commit != nil {
		if err := commit(); err != nil {
			return nil, err
		}
	}
	hooks(h.Hooks).MessageAppended()
	if h.Logger != nil {
		h.Logger.Debug("message appended", "conversation_id", conv.ID, "message_id", msg.ID, "sender_id", msg.SenderID)
	}

	out := dto.MapMessage(msg)
	return &out, nil
}

var _ commands.Handler[SendMessageCommand, *dto.ChatMessage] = (*SendMessageHandler)(nil)
var _ middleware.IdempotentCommand = (*SendMessageCommand)(nil)
