package chat

import (
	"context"

	"carchat/internal/app/dto"
	handlersupport "carchat/internal/app/handlers/support"
	"carchat/internal/app/queries"
	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
)

const listMessagesKey = "chat.message.list"

type ListMessagesQuery struct {
	ConversationID string
	ViewerID       string
	Cursor         string
	Limit          int
	Direction      string
}

func (q ListMessagesQuery) Key() string { return listMessagesKey }

func (q ListMessagesQuery) ActorID() string { return q.ViewerID }

type ListMessagesHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListMessagesHandler) Handle(ctx context.Context, q ListMessagesQuery) (dto.ChatMessageList, error) {
	direction, err := domainchat.ParseDirection(q.Direction)
	if err != nil {
		return dto.ChatMessageList{}, err
	}
	req, err := domainchat.NewPageRequest(domainchat.Cursor(q.Cursor), q.Limit, direction)
	if err != nil {
		return dto.ChatMessageList{}, err
	}

	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ChatMessageList{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	id := domainchat.ConversationID(q.ConversationID)
	conv, err := unit.Conversations().ByID(execCtx, id)
	if err != nil {
		return dto.ChatMessageList{}, err
	}
	if !conv.IsParticipant(q.ViewerID) {
		return dto.ChatMessageList{}, domainchat.ErrNotAParticipant
	}

	page, err := unit.Messages().List(execCtx, id, req)
	if err != nil {
		return dto.ChatMessageList{}, err
	}
	return dto.MapMessagePage(page, direction), nil
}

var _ queries.Handler[ListMessagesQuery, dto.ChatMessageList] = (*ListMessagesHandler)(nil)
