package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/access"
	"chat-backend/internal/models"
	"chat-backend/internal/presence"
	"chat-backend/internal/ws"
)

// TypingHandler exposes the ephemeral typing tracker.
type TypingHandler struct {
	tracker *presence.Tracker
	guard   *access.Guard
	hub     *ws.Hub
}

// NewTypingHandler builds a TypingHandler.
func NewTypingHandler(tracker *presence.Tracker, guard *access.Guard, hub *ws.Hub) *TypingHandler {
	return &TypingHandler{tracker: tracker, guard: guard, hub: hub}
}

// SetTyping upserts the caller's typing flag and fans the change out.
// Clients refresh within the idle window while typing continues; a missed
// refresh simply lets the flag expire.
func (h *TypingHandler) SetTyping(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		Typing *bool `json:"typing" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
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

	h.tracker.Set(chatID, userID, *req.Typing)
	h.hub.Publish(c.Request.Context(), models.Event{
		Type:   models.EventTyping,
		ChatID: chatID,
		UserID: userID,
		Typing: req.Typing,
	})
	c.Status(http.StatusNoContent)
}

// ListTyping returns who is typing, excluding the caller.
func (h *TypingHandler) ListTyping(c *gin.Context) {
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

	users := h.tracker.ListTyping(chatID, userID)
	if users == nil {
		users = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"typing": users})
}
