package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

type MessageID string

const (
	// PreviewLimit caps the denormalized last-message preview, in runes.
	PreviewLimit      = 140
	attachmentPreview = "[attachment]"
)

// Message is immutable once stored, except for the recipient-scoped read flag.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Body           string
	MediaURL       string
	CreatedAt      time.Time
	IsRead         bool
	ReadAt         time.Time
}

type NewMessageParams struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Body           string
	MediaURL       string
	CreatedAt      time.Time
}

// NewMessage validates the payload. Sender membership is checked against the conversation separately.
func NewMessage(params NewMessageParams) (*Message, error) {
	body := strings.TrimSpace(params.Body)
	media := strings.TrimSpace(params.MediaURL)
	if body == "" && media == "" {
		return nil, ErrEmptyMessage
	}
	if strings.TrimSpace(params.SenderID) == "" {
		return nil, ErrNotAParticipant
	}
	id := params.ID
	if id == "" {
		id = NewMessageID()
	}
	return &Message{
		ID:             id,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Body:           body,
		MediaURL:       media,
		CreatedAt:      Millis(params.CreatedAt),
	}, nil
}

// Preview is the text shown in conversation lists and push notifications.
func (m *Message) Preview() string {
	if m.Body == "" {
		return attachmentPreview
	}
	return Truncate(m.Body, PreviewLimit)
}

// Before reports whether m sorts strictly before other by (CreatedAt, ID).
func (m *Message) Before(other *Message) bool {
	return PositionOf(m).Before(PositionOf(other))
}

func NewMessageID() MessageID {
	return MessageID(newID())
}

// Truncate shortens s to at most limit runes, appending an ellipsis when cut.
func Truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
