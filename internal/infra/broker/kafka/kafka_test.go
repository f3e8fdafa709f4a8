package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "carchat/internal/app/outbox"
	"carchat/internal/infra/storage/memory"
)

func TestBuildMessageOrdersHeaders(t *testing.T) {
	msg := buildMessage("chat.events.v1", "c1", []byte(`{}`), map[string]string{"ce-type": "x", "content-type": "y", "ce-id": "z"})
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "ce-id", string(msg.Headers[0].Key))
	assert.Equal(t, "content-type", string(msg.Headers[2].Key))
	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "c1", string(key))

	assert.Nil(t, buildMessage("t", "", nil, nil).Key)
}

func TestRelaySkipsRedeliveries(t *testing.T) {
	payload, headers, err := appoutbox.Format(appoutbox.EventRecord{
		ID: "evt-1", Name: "chat.message_sent", Aggregate: "c1", Payload: []byte(`{"preview":"hi"}`), OccurredAt: time.Now(),
	}, "app://carchat")
	require.NoError(t, err)
	var recordHeaders []*sarama.RecordHeader
	for k, v := range headers {
		recordHeaders = append(recordHeaders, &sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	delivered := 0
	relay := Relay{
		Inbox: memory.NewInbox(),
		Target: appoutbox.PublisherFunc(func(_ context.Context, topic, key string, body []byte, hs map[string]string) error {
			delivered++
			assert.Equal(t, "c1", key)
			assert.Equal(t, appoutbox.ContentType, hs["content-type"])
			return nil
		}),
	}
	msg := &sarama.ConsumerMessage{Topic: "chat.events.v1", Key: []byte("c1"), Value: payload, Headers: recordHeaders}

	require.NoError(t, relay.Handle(context.Background(), msg))
	require.NoError(t, relay.Handle(context.Background(), msg))
	assert.Equal(t, 1, delivered)

	require.Error(t, relay.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("nope")}))
}
