package mongo

import (
	"time"

	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

type conversationDocument struct {
	ID                 string     `bson:"_id"`
	DedupKey           string     `bson:"dedup_key"`
	Kind               string     `bson:"kind"`
	ParticipantA       string     `bson:"participant_a"`
	ParticipantB       string     `bson:"participant_b"`
	Participants       []string   `bson:"participants"`
	ListingKind        string     `bson:"listing_kind,omitempty"`
	ListingID          string     `bson:"listing_id,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	LastMessageAt      *time.Time `bson:"last_message_at,omitempty"`
	LastMessageID      string     `bson:"last_message_id,omitempty"`
	LastSenderID       string     `bson:"last_sender_id,omitempty"`
	LastMessagePreview string     `bson:"last_message_preview,omitempty"`
	LastActivity       time.Time  `bson:"last_activity"`
	UnreadCountA       int        `bson:"unread_count_a"`
	UnreadCountB       int        `bson:"unread_count_b"`
	Version            int64      `bson:"version"`
}

func conversationToDocument(c *domainchat.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:                 string(c.ID),
		DedupKey:           c.DedupKey().String(),
		Kind:               string(c.Kind),
		ParticipantA:       c.ParticipantA,
		ParticipantB:       c.ParticipantB,
		Participants:       []string{c.ParticipantA, c.ParticipantB},
		ListingKind:        string(c.Listing.Kind),
		ListingID:          c.Listing.ID,
		CreatedAt:          c.CreatedAt,
		LastMessageID:      string(c.LastMessageID),
		LastSenderID:       c.LastSenderID,
		LastMessagePreview: c.LastMessagePreview,
		LastActivity:       c.LastActivity(),
		UnreadCountA:       c.UnreadCountA,
		UnreadCountB:       c.UnreadCountB,
		Version:            c.Version,
	}
	if !c.LastMessageAt.IsZero() {
		at := c.LastMessageAt
		doc.LastMessageAt = &at
	}
	return doc
}

func (d conversationDocument) toDomain() *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:                 domainchat.ConversationID(d.ID),
		Kind:               domainchat.Kind(d.Kind),
		ParticipantA:       d.ParticipantA,
		ParticipantB:       d.ParticipantB,
		CreatedAt:          d.CreatedAt.UTC(),
		LastMessageID:      domainchat.MessageID(d.LastMessageID),
		LastSenderID:       d.LastSenderID,
		LastMessagePreview: d.LastMessagePreview,
		UnreadCountA:       d.UnreadCountA,
		UnreadCountB:       d.UnreadCountB,
		Version:            d.Version,
	}
	if d.ListingKind != "" || d.ListingID != "" {
		conv.Listing = listings.Ref{Kind: listings.Kind(d.ListingKind), ID: d.ListingID}
	}
	if d.LastMessageAt != nil {
		conv.LastMessageAt = d.LastMessageAt.UTC()
	}
	return conv
}

type messageDocument struct {
	ID             string     `bson:"_id"`
	ConversationID string     `bson:"conversation_id"`
	SenderID       string     `bson:"sender_id"`
	Body           string     `bson:"body,omitempty"`
	MediaURL       string     `bson:"media_url,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	IsRead         bool       `bson:"is_read"`
	ReadAt         *time.Time `bson:"read_at,omitempty"`
}

func messageToDocument(m *domainchat.Message) messageDocument {
	doc := messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		Body:           m.Body,
		MediaURL:       m.MediaURL,
		CreatedAt:      m.CreatedAt,
		IsRead:         m.IsRead,
	}
	if !m.ReadAt.IsZero() {
		at := m.ReadAt
		doc.ReadAt = &at
	}
	return doc
}

func (d messageDocument) toDomain() *domainchat.Message {
	msg := &domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: domainchat.ConversationID(d.ConversationID),
		SenderID:       d.SenderID,
		Body:           d.Body,
		MediaURL:       d.MediaURL,
		CreatedAt:      d.CreatedAt.UTC(),
		IsRead:         d.IsRead,
	}
	if d.ReadAt != nil {
		msg.ReadAt = d.ReadAt.UTC()
	}
	return msg
}
