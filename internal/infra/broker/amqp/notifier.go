package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"carchat/internal/app/policies"
)

// Meta describes an envelope for the push delivery service.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

type Envelope struct {
	Meta Meta                      `json:"meta"`
	Data policies.PushNotification `json:"data"`
}

type publisher interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// Notifier publishes push notification envelopes routed as "notifications.<code>".
type Notifier struct {
	Client   publisher
	Producer string
	Now      func() time.Time
}

func NewNotifier(client *Client) Notifier {
	return Notifier{Client: client, Producer: client.cfg.Producer}
}

func (n Notifier) Notify(ctx context.Context, msg policies.PushNotification) error {
	env := n.envelope(msg)
	publishing, err := buildPublishing(env)
	if err != nil {
		return err
	}
	return n.Client.Publish(ctx, "notifications."+msg.Code, publishing)
}

func (n Notifier) envelope(msg policies.PushNotification) Envelope {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	id := uuid.NewString()
	correlation := msg.Meta["event_id"]
	if correlation == "" {
		correlation = id
	}
	producer := n.Producer
	if producer == "" {
		producer = "carchat"
	}
	return Envelope{
		Meta: Meta{
			ID:            id,
			CorrelationID: correlation,
			Producer:      producer,
			Time:          now().UTC(),
			Type:          msg.Code + ".v1",
		},
		Data: msg,
	}
}

func buildPublishing(env Envelope) (amqp.Publishing, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("amqp: marshal envelope: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         env.Meta.Producer,
	}, nil
}

var _ policies.Notifier = Notifier{}
