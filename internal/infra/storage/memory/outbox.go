package memory

import (
	"context"
	"log/slog"
	"sync"

	appoutbox "carchat/internal/app/outbox"
	"carchat/internal/app/uow"
)

// Outbox keeps committed events in memory and publishes them on Flush.
// Delivery is best effort: failures are logged and the records dropped.
type Outbox struct {
	Publisher   appoutbox.Publisher
	Source      string
	TopicPrefix string
	Logger      *slog.Logger

	mu      sync.Mutex
	pending []appoutbox.EventRecord
}

func NewOutbox(publisher appoutbox.Publisher, logger *slog.Logger) *Outbox {
	return &Outbox{Publisher: publisher, Source: "app://carchat", Logger: logger}
}

// Add holds the record until the unit in ctx commits, or queues it directly when there is none.
func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if unit, ok := uow.FromContext(ctx); ok {
		if deferrer, ok := unit.(uow.AfterCommitter); ok {
			deferrer.AfterCommit(func() { o.enqueue(record) })
			return nil
		}
	}
	o.enqueue(record)
	return nil
}

func (o *Outbox) enqueue(record appoutbox.EventRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, record)
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	o.mu.Unlock()

	if o.Publisher == nil {
		return nil
	}
	for _, rec := range batch {
		payload, headers, err := appoutbox.Format(rec, o.Source)
		if err == nil {
			err = o.Publisher.Publish(ctx, appoutbox.TopicFor(o.TopicPrefix, rec.Name), rec.Aggregate, payload, headers)
		}
		if err != nil && o.Logger != nil {
			o.Logger.Warn("event delivery failed", "event", rec.Name, "event_id", rec.ID, "aggregate", rec.Aggregate, "error", err)
		}
	}
	return nil
}

// Pending returns a copy of the records waiting for Flush.
func (o *Outbox) Pending() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.pending...)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
