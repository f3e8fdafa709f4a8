package policies

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"carchat/internal/app/outbox"
	domainchat "carchat/internal/domain/chat"
)

const NewMessageCode = "chat.new_message"

// TitleLookup names a conversation for the notification title, e.g. "2019 Toyota Camry".
type TitleLookup func(ctx context.Context, id domainchat.ConversationID) string

// NewMessagePush turns chat.message_sent events into push notifications for the recipient.
// It plugs into event delivery as an outbox.Publisher and ignores every other event.
type NewMessagePush struct {
	Notifier Notifier
	Titles   TitleLookup
	Logger   *slog.Logger
}

func (p NewMessagePush) Publish(ctx context.Context, _ string, _ string, payload []byte, _ map[string]string) error {
	if p.Notifier == nil {
		return nil
	}
	evt, err := outbox.Parse(payload)
	if err != nil {
		return err
	}
	if evt.Name() != domainchat.EventMessageSent {
		return nil
	}
	var sent domainchat.MessageSent
	if err := json.Unmarshal(evt.Data, &sent); err != nil {
		return fmt.Errorf("policies: decode %s: %w", evt.Type, err)
	}
	if sent.RecipientID == "" {
		return nil
	}
	title := "New message"
	if p.Titles != nil {
		if t := p.Titles(ctx, sent.ConversationID); t != "" {
			title = t
		}
	}
	n := PushNotification{
		Code:           NewMessageCode,
		RecipientID:    sent.RecipientID,
		ConversationID: string(sent.ConversationID),
		Title:          title,
		Body:           sent.Preview,
		Meta: map[string]string{
			"event_id":   evt.ID,
			"message_id": string(sent.MessageID),
			"sender_id":  sent.SenderID,
		},
	}
	if err := p.Notifier.Notify(ctx, n); err != nil {
		if p.Logger != nil {
			p.Logger.Warn("push notification not handed off", "conversation_id", sent.ConversationID, "recipient_id", sent.RecipientID, "error", err)
		}
		return err
	}
	return nil
}

var _ outbox.Publisher = NewMessagePush{}
