package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appoutbox "carchat/internal/app/outbox"
	"carchat/internal/domain/chat"
)

// Frame is what a subscriber receives over the socket.
type Frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	EventID        string          `json:"event_id"`
	At             time.Time       `json:"at"`
	Data           json.RawMessage `json:"data"`
}

const (
	FrameMessage = "message"
	FrameRead    = "read"
)

// Hub fans chat events out to sockets subscribed to a conversation.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Client]struct{}
	logger *slog.Logger
	closed bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[string]map[*Client]struct{}), logger: logger}
}

// Publish accepts formatted CloudEvents keyed by conversation id. Events other than
// message_sent and messages_read are ignored.
func (h *Hub) Publish(_ context.Context, _ string, key string, payload []byte, _ map[string]string) error {
	evt, err := appoutbox.Parse(payload)
	if err != nil {
		return err
	}
	var kind string
	switch evt.Name() {
	case chat.EventMessageSent:
		kind = FrameMessage
	case chat.EventMessagesRead:
		kind = FrameRead
	default:
		return nil
	}
	conversationID := key
	if conversationID == "" {
		conversationID = evt.Subject
	}
	raw, err := json.Marshal(Frame{
		Type:           kind,
		ConversationID: conversationID,
		EventID:        evt.ID,
		At:             evt.Time,
		Data:           evt.Data,
	})
	if err != nil {
		return err
	}
	h.broadcast(conversationID, raw)
	return nil
}

func (h *Hub) broadcast(conversationID string, frame []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.subs[conversationID]))
	for c := range h.subs[conversationID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("realtime subscriber too slow, dropping",
				"conversation_id", conversationID, "user_id", c.UserID)
			h.remove(c)
		}
	}
}

// Attach registers conn for conversationID and serves it until the peer goes away or ctx ends.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn, conversationID, userID string) {
	c := newClient(h, conn, conversationID, userID)
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	c.serve(ctx)
}

// Subscribers reports how many sockets listen on a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.subs[c.ConversationID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subs[c.ConversationID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("realtime subscriber attached", "conversation_id", c.ConversationID, "user_id", c.UserID)
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	set, ok := h.subs[c.ConversationID]
	if ok {
		if _, member := set[c]; member {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, c.ConversationID)
			}
			c.stop()
		}
	}
	h.mu.Unlock()
}

// Shutdown disconnects every subscriber and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	all := h.subs
	h.subs = make(map[string]map[*Client]struct{})
	h.mu.Unlock()
	for _, set := range all {
		for c := range set {
			c.stop()
		}
	}
}

var _ appoutbox.Publisher = (*Hub)(nil)
