package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/stafflink/wabridge/internal/conversation"
	"github.com/stafflink/wabridge/internal/message"
)

// ConversationDirectory is the read side of conversation state.
type ConversationDirectory interface {
	List(ctx context.Context, limit int32) ([]conversation.Conversation, error)
	Get(ctx context.Context, conversationID string) (conversation.Conversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// MessageLog is the read side of message history.
type MessageLog interface {
	ListByConversation(ctx context.Context, conversationID string, limit int32) ([]message.Message, error)
}

// ConversationsHandler exposes the inbox read API.
type ConversationsHandler struct {
	conversations ConversationDirectory
	messages      MessageLog
	logger        *slog.Logger
}

func NewConversationsHandler(log *slog.Logger, conversations ConversationDirectory, messages MessageLog) *ConversationsHandler {
	return &ConversationsHandler{
		conversations: conversations,
		messages:      messages,
		logger:        log.With(slog.String("handler", "conversations")),
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	e.GET("/api/conversations", h.List)
	e.GET("/api/conversations/:id/messages", h.ListMessages)
	e.POST("/api/conversations/:id/read", h.MarkRead)
}

// List returns conversations ordered by most recent activity.
func (h *ConversationsHandler) List(c echo.Context) error {
	limit := queryLimit(c, 100)
	conversations, err := h.conversations.List(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("conversation list failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	if conversations == nil {
		conversations = []conversation.Conversation{}
	}
	return c.JSON(http.StatusOK, conversations)
}

// ListMessages returns one conversation's messages oldest-first.
func (h *ConversationsHandler) ListMessages(c echo.Context) error {
	id, err := pathUUID(c)
	if err != nil {
		return err
	}
	if _, err := h.conversations.Get(c.Request().Context(), id); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		h.logger.Error("conversation fetch failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch failed")
	}
	messages, err := h.messages.ListByConversation(c.Request().Context(), id, queryLimit(c, 200))
	if err != nil {
		h.logger.Error("message list failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	if messages == nil {
		messages = []message.Message{}
	}
	return c.JSON(http.StatusOK, messages)
}

// MarkRead resets a conversation's unread counter.
func (h *ConversationsHandler) MarkRead(c echo.Context) error {
	id, err := pathUUID(c)
	if err != nil {
		return err
	}
	if err := h.conversations.MarkRead(c.Request().Context(), id); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		h.logger.Error("mark read failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func pathUUID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
	}
	return id, nil
}

func queryLimit(c echo.Context, fallback int32) int32 {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return int32(parsed)
}
