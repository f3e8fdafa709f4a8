package chat

import (
	"context"

	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
)

// ConversationTitles names a conversation after its listing, for push notification titles.
type ConversationTitles struct {
	UoWFactory uow.UoWFactory
	Resolver   *ContextResolver
}

// Title returns "" when the conversation has no listing or it cannot be resolved.
func (t ConversationTitles) Title(ctx context.Context, id domainchat.ConversationID) string {
	unit, execCtx, err := uow.Begin(ctx, t.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return ""
	}
	defer unit.Rollback(execCtx)
	conv, err := unit.Conversations().ByID(execCtx, id)
	if err != nil {
		return ""
	}
	resolved := t.Resolver.ResolveOrNil(ctx, conv.Listing)
	if resolved == nil {
		return ""
	}
	return resolved.Title
}
