package policies

import "context"

// PushNotification is what the external push-delivery service receives.
type PushNotification struct {
	Code           string            `json:"notification_code"`
	RecipientID    string            `json:"recipient_id"`
	ConversationID string            `json:"conversation_id"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Meta           map[string]string `json:"meta,omitempty"`
}

// Notifier hands notifications to the delivery collaborator. The core never delivers pushes itself.
type Notifier interface {
	Notify(ctx context.Context, n PushNotification) error
}
