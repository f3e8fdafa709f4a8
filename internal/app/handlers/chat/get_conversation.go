package chat

import (
	"context"

	"carchat/internal/app/dto"
	handlersupport "carchat/internal/app/handlers/support"
	"carchat/internal/app/queries"
	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
)

const getConversationKey = "chat.conversation.get"

type GetConversationQuery struct {
	ConversationID string
	ViewerID       string
}

func (q GetConversationQuery) Key() string { return getConversationKey }

func (q GetConversationQuery) ActorID() string { return q.ViewerID }

// GetConversationHandler loads one conversation with its listing context for the header.
type GetConversationHandler struct {
	UoWFactory uow.UoWFactory
	Resolver   *ContextResolver
}

func (h *GetConversationHandler) Handle(ctx context.Context, q GetConversationQuery) (dto.Conversation, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Conversation{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	conv, err := unit.Conversations().ByID(execCtx, domainchat.ConversationID(q.ConversationID))
	if err != nil {
		return dto.Conversation{}, err
	}
	if !conv.IsParticipant(q.ViewerID) {
		return dto.Conversation{}, domainchat.ErrNotAParticipant
	}
	return dto.MapConversation(conv, q.ViewerID, h.Resolver.ResolveOrNil(ctx, conv.Listing)), nil
}

var _ queries.Handler[GetConversationQuery, dto.Conversation] = (*GetConversationHandler)(nil)
