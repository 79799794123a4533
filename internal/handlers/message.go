package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/access"
	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
	"chat-backend/internal/ws"
)

// MessageHandler manages the per-chat message log endpoints.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	guard       *access.Guard
	hub         *ws.Hub
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, guard *access.Guard, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{messageRepo: messageRepo, guard: guard, hub: hub}
}

var validMessageTypes = map[string]bool{
	models.MessageTypeText:  true,
	models.MessageTypeImage: true,
	models.MessageTypeVideo: true,
	models.MessageTypeFile:  true,
}

// ListMessages returns messages after the cursor in (created_at, id) order.
// Serves both initial load and the reconciliation poll after a websocket
// drop.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	userID := callerID(c)
	allowed, err := h.guard.CanRead(c.Request.Context(), userID, chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	cursor, ok := parseCursor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	msgs, err := h.messageRepo.ListSince(c.Request.Context(), chatID, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage appends a message and fans it out.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
		Type    string `json:"type"`
		ReplyTo *int64 `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type == "" {
		req.Type = models.MessageTypeText
	}
	if !validMessageTypes[req.Type] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message type"})
		return
	}

	userID := callerID(c)
	allowed, err := h.guard.CanWrite(c.Request.Context(), userID, chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msg, err := h.messageRepo.Append(c.Request.Context(), chatID, userID, req.Content, req.Type, req.ReplyTo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	observability.IncMessageStored()

	h.hub.Publish(c.Request.Context(), models.Event{
		Type:    models.EventMessageCreated,
		ChatID:  chatID,
		Message: &msg,
	})
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage removes a single message; sender only.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "message not found"})
		return
	}
	if msg.ChatID != chatID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to chat"})
		return
	}

	if !h.guard.CanDeleteMessage(callerID(c), msg) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only sender can delete"})
		return
	}

	if err := h.messageRepo.Delete(c.Request.Context(), messageID); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not delete message"})
		return
	}

	h.hub.Publish(c.Request.Context(), models.Event{
		Type:      models.EventMessageDeleted,
		ChatID:    chatID,
		MessageID: messageID,
	})
	c.Status(http.StatusNoContent)
}

// DeleteMyMessages removes every message the caller sent in the chat.
func (h *MessageHandler) DeleteMyMessages(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	userID := callerID(c)
	allowed, err := h.guard.CanRead(c.Request.Context(), userID, chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	ids, err := h.messageRepo.DeleteAllBySender(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete messages"})
		return
	}

	for _, id := range ids {
		h.hub.Publish(c.Request.Context(), models.Event{
			Type:      models.EventMessageDeleted,
			ChatID:    chatID,
			MessageID: id,
		})
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(ids)})
}
