package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"carchat/internal/app/commands"
	"carchat/internal/app/dto"
	chatapp "carchat/internal/app/handlers/chat"
	"carchat/internal/app/middleware"
	"carchat/internal/app/queries"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
)

const (
	defaultConversationLimit = 20
	defaultMessageLimit      = 50
)

// ChatHandler bridges HTTP with the chat command and query buses.
type ChatHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type ensureRequest struct {
	Kind         string          `json:"kind"`
	DealershipID string          `json:"dealership_id"`
	SellerUserID string          `json:"seller_user_id"`
	Listing      *dto.ListingRef `json:"listing"`
}

type sendRequest struct {
	Body     string `json:"body"`
	MediaURL string `json:"media_url"`
}

// Ensure returns the conversation for the caller, counterparty and listing, creating it when absent.
func (h ChatHandler) Ensure(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req ensureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	var ref listings.Ref
	if req.Listing != nil {
		parsed, err := listings.ParseRef(req.Listing.Kind, req.Listing.ID)
		if err != nil {
			h.respondError(c, err, "ensure conversation", "user_id", p.UserID)
			return
		}
		ref = parsed
	}
	cmd := chatapp.EnsureConversationCommand{
		InitiatorID:  p.UserID,
		Kind:         domainchat.Kind(strings.ToLower(strings.TrimSpace(req.Kind))),
		DealershipID: strings.TrimSpace(req.DealershipID),
		SellerUserID: strings.TrimSpace(req.SellerUserID),
		Listing:      ref,
	}
	conv, err := commands.Dispatch[chatapp.EnsureConversationCommand, *dto.Conversation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.respondError(c, err, "ensure conversation", "user_id", p.UserID)
		return
	}
	code := http.StatusOK
	if conv.Created {
		code = http.StatusCreated
	}
	c.JSON(code, conv)
}

func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q := chatapp.ListConversationsQuery{
		ViewerID: p.Actor(),
		Cursor:   c.Query("cursor"),
		Limit:    parsePositiveIntStrict(c.Query("limit"), defaultConversationLimit),
	}
	list, err := queries.Ask[chatapp.ListConversationsQuery, dto.ConversationList](c.Request.Context(), h.Queries, q)
	if err != nil {
		h.respondError(c, err, "list conversations", "user_id", p.Actor())
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h ChatHandler) GetConversation(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conv, err := h.loadConversation(c.Request.Context(), c.Param("id"), p.Actor())
	if err != nil {
		h.respondError(c, err, "get conversation", "conversation_id", c.Param("id"), "user_id", p.Actor())
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q := chatapp.ListMessagesQuery{
		ConversationID: c.Param("id"),
		ViewerID:       p.Actor(),
		Cursor:         c.Query("cursor"),
		Limit:          parsePositiveIntStrict(c.Query("limit"), defaultMessageLimit),
		Direction:      c.Query("direction"),
	}
	list, err := queries.Ask[chatapp.ListMessagesQuery, dto.ChatMessageList](c.Request.Context(), h.Queries, q)
	if err != nil {
		h.respondError(c, err, "list messages", "conversation_id", q.ConversationID, "user_id", q.ViewerID)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cmd := chatapp.SendMessageCommand{
		ConversationID:  c.Param("id"),
		SenderID:        p.Actor(),
		Body:            req.Body,
		MediaURL:        req.MediaURL,
		IdempotencyKeyV: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	}
	msg, err := commands.Dispatch[chatapp.SendMessageCommand, *dto.ChatMessage](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.respondError(c, err, "send message", "conversation_id", cmd.ConversationID, "user_id", cmd.SenderID)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	cmd := chatapp.MarkReadCommand{ConversationID: c.Param("id"), ReaderID: p.Actor()}
	res, err := commands.Dispatch[chatapp.MarkReadCommand, *dto.MarkReadResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.respondError(c, err, "mark read", "conversation_id", cmd.ConversationID, "user_id", cmd.ReaderID)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h ChatHandler) loadConversation(ctx context.Context, id, viewer string) (dto.Conversation, error) {
	return queries.Ask[chatapp.GetConversationQuery, dto.Conversation](ctx, h.Queries, chatapp.GetConversationQuery{
		ConversationID: id,
		ViewerID:       viewer,
	})
}

func (h ChatHandler) respondError(c *gin.Context, err error, action string, attrs ...any) {
	code, msg := classifyError(err)
	if h.Logger != nil {
		level := slog.LevelDebug
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.Logger.Log(c.Request.Context(), level, "chat request failed",
			append([]any{"action", action, "status", code, "error", err}, attrs...)...)
	}
	_ = c.Error(err)
	c.JSON(code, gin.H{"error": msg})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, middleware.ErrActorMissing):
		return http.StatusUnauthorized, "auth required"
	case errors.Is(err, domainchat.ErrNotAParticipant):
		return http.StatusForbidden, "not a chat participant"
	case errors.Is(err, domainchat.ErrConversationNotFound):
		return http.StatusNotFound, "conversation not found"
	case domainchat.IsValidation(err),
		errors.Is(err, listings.ErrInvalidRef),
		errors.Is(err, listings.ErrUnknownRefKind):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, domainchat.ErrConflictRetryExhausted),
		errors.Is(err, middleware.ErrIdempotencyKeyReused):
		return http.StatusConflict, "conflict, try again"
	case errors.Is(err, domainchat.ErrTransientStore),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "chat temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func validationMessage(err error) string {
	for _, known := range []error{
		domainchat.ErrInvalidParticipants,
		domainchat.ErrSelfChatRejected,
		domainchat.ErrEmptyMessage,
		domainchat.ErrInvalidCursor,
		listings.ErrInvalidRef,
		listings.ErrUnknownRefKind,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "invalid request"
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ ChatHTTP = ChatHandler{}
