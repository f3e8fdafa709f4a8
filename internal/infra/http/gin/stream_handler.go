package ginserver

import (
	"context"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Hub is the realtime fan-out the stream endpoint attaches sockets to.
type Hub interface {
	Attach(ctx context.Context, conn *websocket.Conn, conversationID, userID string)
}

type StreamHandler struct {
	Chat     ChatHandler
	Hub      Hub
	Upgrader websocket.Upgrader
	Logger   *slog.Logger
}

// Subscribe upgrades to a websocket once the caller is known to be a participant.
func (h StreamHandler) Subscribe(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := h.Chat.loadConversation(c.Request.Context(), id, p.Actor()); err != nil {
		h.Chat.respondError(c, err, "subscribe", "conversation_id", id, "user_id", p.Actor())
		return
	}
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "conversation_id", id, "error", err)
		}
		return
	}
	h.Hub.Attach(c.Request.Context(), conn, id, p.Actor())
}

var _ StreamHTTP = StreamHandler{}
