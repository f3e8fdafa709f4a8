package chat

import (
	"time"

	"carchat/internal/app/outbox"
)

// Hooks receives domain level counters. Every method must be cheap and non-blocking.
type Hooks interface {
	ConversationEnsured(created bool)
	ConflictRetried()
	MessageAppended()
	MessagesMarkedRead(n int)
}

type noopHooks struct{}

func (noopHooks) ConversationEnsured(bool) {}
func (noopHooks) ConflictRetried()         {}
func (noopHooks) MessageAppended()         {}
func (noopHooks) MessagesMarkedRead(int)   {}

func hooks(h Hooks) Hooks {
	if h == nil {
		return noopHooks{}
	}
	return h
}

func encoder(enc outbox.EventEncoder) outbox.EventEncoder {
	if enc != nil {
		return enc
	}
	return outbox.JSONEventEncoder{}
}

func now(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now()
}
