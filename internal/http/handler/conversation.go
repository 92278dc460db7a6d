package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"meshforge.app/studio/internal/model"
	"meshforge.app/studio/internal/store"
)

const defaultConversationLimit = 50

type ConversationHandler struct {
	conversations store.ConversationStore
	messages      store.MessageStore
}

func NewConversationHandler(conversations store.ConversationStore, messages store.MessageStore) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages}
}

func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit := int32(defaultConversationLimit)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = int32(parsed)
	}

	conversations, err := h.conversations.List(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list conversations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	if conversations == nil {
		conversations = []model.Conversation{}
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := conversationID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversation, err := h.conversations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	messages, err := h.messages.ListByConversation(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load messages", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": conversation,
		"messages":     messages,
	})
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := conversationID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversations.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to delete conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	c.Status(http.StatusNoContent)
}

func conversationID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.New("invalid conversation id")
	}
	return id, nil
}
