package chat

import (
	"context"
	"log/slog"

	"carchat/internal/app/dto"
	handlersupport "carchat/internal/app/handlers/support"
	"carchat/internal/app/queries"
	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
)

const listConversationsKey = "chat.conversation.list"

// ListConversationsQuery lists the viewer's conversations, most recent activity first.
type ListConversationsQuery struct {
	ViewerID string
	Cursor   string
	Limit    int
}

func (q ListConversationsQuery) Key() string { return listConversationsKey }

func (q ListConversationsQuery) ActorID() string { return q.ViewerID }

type ListConversationsHandler struct {
	UoWFactory uow.UoWFactory
	Resolver   *ContextResolver
	Logger     *slog.Logger
}

func (h *ListConversationsHandler) Handle(ctx context.Context, q ListConversationsQuery) (dto.ConversationList, error) {
	req, err := domainchat.NewConversationPageRequest(domainchat.Cursor(q.Cursor), q.Limit)
	if err != nil {
		return dto.ConversationList{}, err
	}

	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ConversationList{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	page, err := unit.Conversations().ListByParticipant(execCtx, q.ViewerID, req)
	if err != nil {
		return dto.ConversationList{}, err
	}

	out := dto.ConversationList{
		Items:      make([]dto.Conversation, 0, len(page.Items)),
		NextCursor: string(page.Next),
	}
	for _, conv := range page.Items {
		out.Items = append(out.Items, dto.MapConversation(conv, q.ViewerID, h.Resolver.ResolveOrNil(ctx, conv.Listing)))
	}
	if h.Logger != nil {
		h.Logger.Debug("conversations listed", "viewer_id", q.ViewerID, "count", len(out.Items))
	}
	return out, nil
}

var _ queries.Handler[ListConversationsQuery, dto.ConversationList] = (*ListConversationsHandler)(nil)
