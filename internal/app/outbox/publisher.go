package outbox

import (
	"context"
	"errors"
)

// Publisher is anything that can take a formatted event: a broker producer, the realtime hub,
// the push relay.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// MultiPublisher delivers to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, key, payload, headers); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error

func (f PublisherFunc) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	return f(ctx, topic, key, payload, headers)
}
