package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	appoutbox "carchat/internal/app/outbox"
)

// Inbox deduplicates redelivered events.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// Relay hands consumed chat events to local subscribers exactly once per consumer group.
type Relay struct {
	Inbox  Inbox
	Target appoutbox.Publisher
}

func (r Relay) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	evt, err := appoutbox.Parse(msg.Value)
	if err != nil {
		return fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	if r.Inbox != nil {
		seen, err := r.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		if h != nil {
			headers[string(h.Key)] = string(h.Value)
		}
	}
	return r.Target.Publish(ctx, msg.Topic, string(msg.Key), msg.Value, headers)
}

var _ MessageHandler = Relay{}
