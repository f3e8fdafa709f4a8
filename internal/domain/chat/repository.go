package chat

import (
	"context"
	"sort"
	"time"
)

// ConversationRepository persists conversation rows. Create is the only way a row comes to exist.
type ConversationRepository interface {
	// Create inserts conv and fails with ErrDuplicateConversation when its dedup key is taken.
	Create(ctx context.Context, conv *Conversation) error
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByDedupKey(ctx context.Context, key DedupKey) (*Conversation, error)
	ListByParticipant(ctx context.Context, participant string, req ConversationPageRequest) (ConversationPage, error)
}

// MessageRepository stores messages and keeps the owning conversation summary in step.
type MessageRepository interface {
	// Append inserts msg and, in the same atomic unit, moves the conversation's last-message
	// fields and increments the recipient's unread counter. msg.CreatedAt is moved forward when
	// needed to keep the conversation ordering non-decreasing. The updated conversation is returned.
	Append(ctx context.Context, msg *Message) (*Conversation, error)
	List(ctx context.Context, id ConversationID, req PageRequest) (MessagePage, error)
	// MarkRead flips every unread message not sent by reader and zeroes the reader's counter.
	// It returns how many messages changed state.
	MarkRead(ctx context.Context, id ConversationID, reader string, at time.Time) (int, error)
}

// ConversationPageRequest pages a participant's conversations, most recent activity first.
type ConversationPageRequest struct {
	Before Position
	Limit  int
}

type ConversationPage struct {
	Items []*Conversation
	Next  Cursor
}

func NewConversationPageRequest(cursor Cursor, limit int) (ConversationPageRequest, error) {
	pos, err := DecodeCursor(cursor)
	if err != nil {
		return ConversationPageRequest{}, err
	}
	return ConversationPageRequest{Before: pos, Limit: NormalizeLimit(limit)}, nil
}

// ActivityPosition places a conversation in the list order.
func ActivityPosition(c *Conversation) Position {
	return Position{At: c.LastActivity(), ID: string(c.ID)}
}

// SortByActivity orders conversations newest activity first.
func SortByActivity(items []*Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		return ActivityPosition(items[j]).Before(ActivityPosition(items[i]))
	})
}

// WindowConversations applies req to conversations already sorted by SortByActivity.
func WindowConversations(sorted []*Conversation, req ConversationPageRequest) ConversationPage {
	limit := NormalizeLimit(req.Limit)
	start := 0
	if !req.Before.IsZero() {
		for start < len(sorted) && !ActivityPosition(sorted[start]).Before(req.Before) {
			start++
		}
	}
	end := start + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	page := ConversationPage{Items: sorted[start:end]}
	if end < len(sorted) && end > start {
		page.Next = EncodeCursor(ActivityPosition(sorted[end-1]))
	}
	return page
}
