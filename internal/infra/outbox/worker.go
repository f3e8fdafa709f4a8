package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	appoutbox "carchat/internal/app/outbox"
)

// Claimed is a record taken by one worker together with its delivery history.
type Claimed struct {
	Record   appoutbox.EventRecord
	Attempts int
}

// Queue is the persistence side of the outbox as the worker sees it.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*Claimed, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

// DeliveryObserver is told about every delivery attempt.
type DeliveryObserver interface {
	EventPublished(name string, err error)
}

type Worker struct {
	Queue       Queue
	Producer    appoutbox.Publisher
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	// Wake, when set, triggers a drain before the next tick.
	Wake     <-chan struct{}
	Observer DeliveryObserver
	Logger   *slog.Logger
}

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

func (w *Worker) Run(ctx context.Context) error {
	if w.Queue == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-w.Wake:
		}
		if err := w.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if w.Logger != nil {
				w.Logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain delivers due records until the queue has nothing left to hand out.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		more, err := w.processOnce(ctx)
		if err != nil || !more {
			return err
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) (bool, error) {
	claimed, err := w.Queue.Claim(ctx, w.workerID())
	if err != nil || claimed == nil {
		return false, err
	}
	rec := claimed.Record
	payload, headers, err := appoutbox.Format(rec, w.source())
	if err == nil {
		err = w.Producer.Publish(ctx, appoutbox.TopicFor(w.TopicPrefix, rec.Name), rec.Aggregate, payload, headers)
	}
	if w.Observer != nil {
		w.Observer.EventPublished(rec.Name, err)
	}
	if err != nil {
		if w.Logger != nil {
			w.Logger.Warn("outbox delivery failed", "event", rec.Name, "event_id", rec.ID, "attempts", claimed.Attempts+1, "error", err)
		}
		return true, w.Queue.MarkFailed(ctx, rec.ID, w.nextRetry(claimed.Attempts), err.Error())
	}
	return true, w.Queue.MarkSent(ctx, rec.ID)
}

func (w *Worker) workerID() string {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return w.ID
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://carchat"
}
