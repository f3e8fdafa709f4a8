package scylla

import (
	"time"

	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

const summaryColumns = `conversation_id, kind, participant_a, participant_b, listing_kind, listing_id,
	created_at, last_message_at, last_message_id, last_sender_id, last_message_preview,
	unread_count_a, unread_count_b, version`

const messageColumns = `conversation_id, message_at, message_id, sender_id, body, media_url, is_read, read_at`

type summaryRow struct {
	ID                 string
	Kind               string
	ParticipantA       string
	ParticipantB       string
	ListingKind        string
	ListingID          string
	CreatedAt          time.Time
	LastMessageAt      time.Time
	LastMessageID      string
	LastSenderID       string
	LastMessagePreview string
	UnreadCountA       int
	UnreadCountB       int
	Version            int64
}

func (r *summaryRow) dest() []any {
	return []any{
		&r.ID, &r.Kind, &r.ParticipantA, &r.ParticipantB, &r.ListingKind, &r.ListingID,
		&r.CreatedAt, &r.LastMessageAt, &r.LastMessageID, &r.LastSenderID, &r.LastMessagePreview,
		&r.UnreadCountA, &r.UnreadCountB, &r.Version,
	}
}

func (r summaryRow) toDomain() *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:                 domainchat.ConversationID(r.ID),
		Kind:               domainchat.Kind(r.Kind),
		ParticipantA:       r.ParticipantA,
		ParticipantB:       r.ParticipantB,
		CreatedAt:          r.CreatedAt.UTC(),
		LastMessageID:      domainchat.MessageID(r.LastMessageID),
		LastSenderID:       r.LastSenderID,
		LastMessagePreview: r.LastMessagePreview,
		UnreadCountA:       r.UnreadCountA,
		UnreadCountB:       r.UnreadCountB,
		Version:            r.Version,
	}
	if r.ListingKind != "" || r.ListingID != "" {
		conv.Listing = listings.Ref{Kind: listings.Kind(r.ListingKind), ID: r.ListingID}
	}
	if !r.LastMessageAt.IsZero() {
		conv.LastMessageAt = r.LastMessageAt.UTC()
	}
	return conv
}

type messageRow struct {
	ConversationID string
	At             time.Time
	ID             string
	SenderID       string
	Body           string
	MediaURL       string
	IsRead         bool
	ReadAt         time.Time
}

func (r *messageRow) dest() []any {
	return []any{&r.ConversationID, &r.At, &r.ID, &r.SenderID, &r.Body, &r.MediaURL, &r.IsRead, &r.ReadAt}
}

func (r messageRow) toDomain() *domainchat.Message {
	msg := &domainchat.Message{
		ID:             domainchat.MessageID(r.ID),
		ConversationID: domainchat.ConversationID(r.ConversationID),
		SenderID:       r.SenderID,
		Body:           r.Body,
		MediaURL:       r.MediaURL,
		CreatedAt:      r.At.UTC(),
		IsRead:         r.IsRead,
	}
	if !r.ReadAt.IsZero() {
		msg.ReadAt = r.ReadAt.UTC()
	}
	return msg
}

// nullableTime keeps zero times out of the table.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
