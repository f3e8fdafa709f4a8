package dto

import (
	"time"

	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

// ListingRef is the wire form of a listing reference.
type ListingRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// ConversationContext is the normalized listing header.
type ConversationContext struct {
	Kind   string   `json:"kind"`
	Title  string   `json:"title"`
	Images []string `json:"images"`
	Price  float64  `json:"price"`
	Status string   `json:"status"`
}

// Conversation describes chat metadata as seen by one participant.
type Conversation struct {
	ID                 string               `json:"id"`
	Kind               string               `json:"kind"`
	ParticipantA       string               `json:"participant_a"`
	ParticipantB       string               `json:"participant_b"`
	Listing            *ListingRef          `json:"listing_ref,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	LastMessageAt      *time.Time           `json:"last_message_at,omitempty"`
	LastMessageID      string               `json:"last_message_id,omitempty"`
	LastMessageSender  string               `json:"last_message_sender_id,omitempty"`
	LastMessagePreview string               `json:"last_message_preview,omitempty"`
	UnreadCountA       int                  `json:"unread_count_a"`
	UnreadCountB       int                  `json:"unread_count_b"`
	Unread             int                  `json:"unread"`
	Context            *ConversationContext `json:"context"`
	Created            bool                 `json:"created,omitempty"`
}

// ConversationList is a paginated collection.
type ConversationList struct {
	Items      []Conversation `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body,omitempty"`
	MediaURL       string     `json:"media_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// ChatMessageList is a paginated message list, oldest first.
type ChatMessageList struct {
	Items      []ChatMessage `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
	Direction  string        `json:"direction"`
}

type MarkReadResult struct {
	ConversationID string `json:"conversation_id"`
	Transitioned   int    `json:"transitioned"`
}

// MapConversation renders conv for viewer; ctx may be nil when the listing is unavailable.
func MapConversation(conv *domainchat.Conversation, viewer string, ctx *domainchat.ConversationContext) Conversation {
	out := Conversation{
		ID:                 string(conv.ID),
		Kind:               string(conv.Kind),
		ParticipantA:       conv.ParticipantA,
		ParticipantB:       conv.ParticipantB,
		Listing:            MapListingRef(conv.Listing),
		CreatedAt:          conv.CreatedAt,
		LastMessageID:      string(conv.LastMessageID),
		LastMessageSender:  conv.LastSenderID,
		LastMessagePreview: conv.LastMessagePreview,
		UnreadCountA:       conv.UnreadCountA,
		UnreadCountB:       conv.UnreadCountB,
		Unread:             conv.UnreadFor(viewer),
		Context:            MapContext(ctx),
	}
	if !conv.LastMessageAt.IsZero() {
		at := conv.LastMessageAt
		out.LastMessageAt = &at
	}
	return out
}

func MapListingRef(ref listings.Ref) *ListingRef {
	if ref.IsZero() {
		return nil
	}
	return &ListingRef{Kind: string(ref.Kind), ID: ref.ID}
}

func MapContext(ctx *domainchat.ConversationContext) *ConversationContext {
	if ctx == nil {
		return nil
	}
	images := ctx.Images
	if images == nil {
		images = []string{}
	}
	return &ConversationContext{
		Kind:   string(ctx.Kind),
		Title:  ctx.Title,
		Images: append([]string(nil), images...),
		Price:  ctx.Price,
		Status: ctx.Status,
	}
}

func MapMessage(msg *domainchat.Message) ChatMessage {
	out := ChatMessage{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		MediaURL:       msg.MediaURL,
		CreatedAt:      msg.CreatedAt,
		IsRead:         msg.IsRead,
	}
	if !msg.ReadAt.IsZero() {
		at := msg.ReadAt
		out.ReadAt = &at
	}
	return out
}

func MapMessagePage(page domainchat.MessagePage, direction domainchat.Direction) ChatMessageList {
	out := ChatMessageList{
		Items:      make([]ChatMessage, 0, len(page.Items)),
		NextCursor: string(page.Next),
		Direction:  string(direction),
	}
	for _, msg := range page.Items {
		out.Items = append(out.Items, MapMessage(msg))
	}
	return out
}
