package policies

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/app/outbox"
	domainchat "carchat/internal/domain/chat"
)

type captureNotifier struct {
	sent []PushNotification
}

func (c *captureNotifier) Notify(_ context.Context, n PushNotification) error {
	c.sent = append(c.sent, n)
	return nil
}

func formatted(t *testing.T, ev interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	payload, _, err := outbox.Format(outbox.EventRecord{ID: "evt-1", Name: ev.EventName(), Payload: data, Aggregate: ev.AggregateID(), OccurredAt: ev.OccurredAt()}, "test")
	require.NoError(t, err)
	return payload
}

func TestNewMessagePushNotifiesRecipient(t *testing.T) {
	notifier := &captureNotifier{}
	policy := NewMessagePush{
		Notifier: notifier,
		Titles: func(context.Context, domainchat.ConversationID) string {
			return "2019 Toyota Camry"
		},
	}
	payload := formatted(t, domainchat.MessageSent{ConversationID: "c1", MessageID: "m1", SenderID: "u1", RecipientID: "42", Preview: "is it available?", At: time.Now()})

	require.NoError(t, policy.Publish(context.Background(), "chat.events.v1", "c1", payload, nil))
	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, "42", n.RecipientID)
	assert.Equal(t, "c1", n.ConversationID)
	assert.Equal(t, "2019 Toyota Camry", n.Title)
	assert.Equal(t, "is it available?", n.Body)
	assert.Equal(t, "evt-1", n.Meta["event_id"])
}

func TestNewMessagePushIgnoresOtherEvents(t *testing.T) {
	notifier := &captureNotifier{}
	policy := NewMessagePush{Notifier: notifier}
	payload := formatted(t, domainchat.MessagesRead{ConversationID: "c1", ReaderID: "42", Count: 2, At: time.Now()})

	require.NoError(t, policy.Publish(context.Background(), "chat.events.v1", "c1", payload, nil))
	assert.Empty(t, notifier.sent)
}
