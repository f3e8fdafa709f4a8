package chat

import (
	"time"

	"carchat/internal/domain/shared/events"
)

const (
	EventConversationStarted = "chat.conversation_started"
	EventMessageSent         = "chat.message_sent"
	EventMessagesRead        = "chat.messages_read"
)

type ConversationStarted struct {
	ConversationID ConversationID `json:"conversation_id"`
	Kind           Kind           `json:"kind"`
	ParticipantA   string         `json:"participant_a"`
	ParticipantB   string         `json:"participant_b"`
	Listing        string         `json:"listing_ref"`
	At             time.Time      `json:"occurred_at"`
}

func (e ConversationStarted) EventName() string     { return EventConversationStarted }
func (e ConversationStarted) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationStarted) OccurredAt() time.Time { return e.At }

// MessageSent is the notification payload consumed by push delivery and realtime subscribers.
type MessageSent struct {
	ConversationID ConversationID `json:"conversation_id"`
	MessageID      MessageID      `json:"message_id"`
	SenderID       string         `json:"sender_id"`
	RecipientID    string         `json:"recipient_id"`
	Preview        string         `json:"preview"`
	MediaURL       string         `json:"media_url,omitempty"`
	At             time.Time      `json:"occurred_at"`
}

func (e MessageSent) EventName() string     { return EventMessageSent }
func (e MessageSent) AggregateID() string   { return string(e.ConversationID) }
func (e MessageSent) OccurredAt() time.Time { return e.At }

// MessagesRead is the read receipt shown to the other participant.
type MessagesRead struct {
	ConversationID ConversationID `json:"conversation_id"`
	ReaderID       string         `json:"reader_id"`
	SenderID       string         `json:"sender_id"`
	Count          int            `json:"count"`
	At             time.Time      `json:"occurred_at"`
}

func (e MessagesRead) EventName() string     { return EventMessagesRead }
func (e MessagesRead) AggregateID() string   { return string(e.ConversationID) }
func (e MessagesRead) OccurredAt() time.Time { return e.At }

var (
	_ events.DomainEvent = ConversationStarted{}
	_ events.DomainEvent = MessageSent{}
	_ events.DomainEvent = MessagesRead{}
)
