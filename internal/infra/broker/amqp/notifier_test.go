package amqp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/app/policies"
)

type capturePublisher struct {
	key string
	msg amqp.Publishing
}

func (c *capturePublisher) Publish(_ context.Context, routingKey string, msg amqp.Publishing) error {
	c.key = routingKey
	c.msg = msg
	return nil
}

func TestNotifierPublishesEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := Notifier{Client: pub, Now: func() time.Time { return at }}

	err := n.Notify(context.Background(), policies.PushNotification{
		Code:           policies.NewMessageCode,
		RecipientID:    "42",
		ConversationID: "c1",
		Title:          "2019 Toyota Camry",
		Body:           "is it still available?",
		Meta:           map[string]string{"event_id": "evt-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "notifications.chat.new_message", pub.key)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, "evt-1", pub.msg.CorrelationId)
	assert.Equal(t, "carchat", pub.msg.AppId)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.msg.Body, &env))
	assert.Equal(t, "chat.new_message.v1", env.Meta.Type)
	assert.Equal(t, at, env.Meta.Time)
	assert.Equal(t, "42", env.Data.RecipientID)
	assert.Equal(t, "is it still available?", env.Data.Body)
}
