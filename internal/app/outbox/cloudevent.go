package outbox

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	specVersion        = "1.0"
	ContentType        = "application/cloudevents+json"
	eventVersionSuffix = ".v1"
)

var ErrMalformedEvent = errors.New("outbox: malformed cloud event")

// CloudEvent is the structured-mode envelope every producer receives.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	TraceParent     string          `json:"traceparent,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// Name strips the version suffix, giving back the domain event name.
func (e CloudEvent) Name() string {
	return strings.TrimSuffix(e.Type, eventVersionSuffix)
}

// Format wraps a record into a CloudEvent and returns the payload with its transport headers.
// The record id becomes the event id so consumers can deduplicate redeliveries.
func Format(rec EventRecord, source string) ([]byte, map[string]string, error) {
	if !json.Valid(rec.Payload) {
		return nil, nil, ErrMalformedEvent
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	evt := CloudEvent{
		SpecVersion:     specVersion,
		ID:              id,
		Type:            rec.Name + eventVersionSuffix,
		Source:          source,
		Subject:         rec.Aggregate,
		Time:            rec.OccurredAt,
		DataContentType: "application/json",
		Data:            json.RawMessage(rec.Payload),
	}
	if trace, ok := rec.Headers["traceparent"]; ok {
		evt.TraceParent = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": ContentType,
		"ce-id":        id,
		"ce-type":      evt.Type,
	}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

func Parse(payload []byte) (CloudEvent, error) {
	var evt CloudEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return CloudEvent{}, err
	}
	if evt.ID == "" || evt.Type == "" {
		return CloudEvent{}, ErrMalformedEvent
	}
	return evt, nil
}

// TopicFor maps "chat.message_sent" to "<prefix>chat.events.v1".
func TopicFor(prefix, name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return prefix + base + ".events" + eventVersionSuffix
}
