package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "carchat/internal/app/outbox"
)

type fakeQueue struct {
	mu      sync.Mutex
	pending []*Claimed
	sent    []string
	failed  map[string]time.Time
}

func (q *fakeQueue) Claim(context.Context, string) (*Claimed, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	return next, nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id string, next time.Time, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failed == nil {
		q.failed = map[string]time.Time{}
	}
	q.failed[id] = next
	return nil
}

type published struct {
	topic, key string
	event      appoutbox.CloudEvent
}

func TestWorkerDrainFormatsAndRoutes(t *testing.T) {
	queue := &fakeQueue{pending: []*Claimed{
		{Record: appoutbox.EventRecord{ID: "e1", Name: "chat.message_sent", Aggregate: "c1", Payload: []byte(`{"preview":"hi"}`)}},
		{Record: appoutbox.EventRecord{ID: "e2", Name: "chat.messages_read", Aggregate: "c1", Payload: []byte(`{"count":2}`)}},
	}}
	var out []published
	worker := &Worker{
		Queue:       queue,
		TopicPrefix: "dev.",
		Producer: appoutbox.PublisherFunc(func(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
			evt, err := appoutbox.Parse(payload)
			require.NoError(t, err)
			assert.Equal(t, appoutbox.ContentType, headers["content-type"])
			out = append(out, published{topic: topic, key: key, event: evt})
			return nil
		}),
	}

	require.NoError(t, worker.Drain(context.Background()))
	require.Len(t, out, 2)
	assert.Equal(t, "dev.chat.events.v1", out[0].topic)
	assert.Equal(t, "c1", out[0].key)
	assert.Equal(t, "e1", out[0].event.ID)
	assert.Equal(t, "chat.messages_read", out[1].event.Name())
	assert.Equal(t, []string{"e1", "e2"}, queue.sent)
}

func TestWorkerSchedulesRetryOnFailure(t *testing.T) {
	queue := &fakeQueue{pending: []*Claimed{
		{Record: appoutbox.EventRecord{ID: "e1", Name: "chat.message_sent", Payload: []byte(`{}`)}, Attempts: 5},
		{Record: appoutbox.EventRecord{ID: "bad", Name: "chat.message_sent", Payload: []byte(`not json`)}},
	}}
	worker := &Worker{
		Queue:   queue,
		Backoff: []time.Duration{time.Second, time.Minute},
		Producer: appoutbox.PublisherFunc(func(context.Context, string, string, []byte, map[string]string) error {
			return errors.New("broker down")
		}),
	}

	before := time.Now()
	require.NoError(t, worker.Drain(context.Background()))
	assert.Empty(t, queue.sent)
	require.Contains(t, queue.failed, "e1")
	assert.True(t, queue.failed["e1"].After(before.Add(59*time.Second)), "attempts past the schedule reuse the last wait")
	assert.Contains(t, queue.failed, "bad")
}

func TestWorkerRequiresDependencies(t *testing.T) {
	err := (&Worker{}).Run(context.Background())
	require.ErrorIs(t, err, ErrWorkerNotConfigured)
}
