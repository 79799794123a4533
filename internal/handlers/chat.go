package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/access"
	"chat-backend/internal/models"
	"chat-backend/internal/presence"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
	"chat-backend/internal/ws"
)

// ChatHandler manages chat lifecycle and membership endpoints.
type ChatHandler struct {
	chatRepo   repositories.ChatRepository
	memberRepo repositories.MembershipRepository
	friendRepo repositories.FriendRepository
	guard      *access.Guard
	hub        *ws.Hub
	tracker    *presence.Tracker
	emitter    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(
	chatRepo repositories.ChatRepository,
	memberRepo repositories.MembershipRepository,
	friendRepo repositories.FriendRepository,
	guard *access.Guard,
	hub *ws.Hub,
	tracker *presence.Tracker,
	emitter *telemetry.AuditEmitter,
) *ChatHandler {
	return &ChatHandler{
		chatRepo:   chatRepo,
		memberRepo: memberRepo,
		friendRepo: friendRepo,
		guard:      guard,
		hub:        hub,
		tracker:    tracker,
		emitter:    emitter,
	}
}

// ListChats returns the chats the caller belongs to.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chatRepo.ListChats(c.Request.Context(), callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartDirectChat creates or returns the existing direct chat with a friend.
func (h *ChatHandler) StartDirectChat(c *gin.Context) {
	var req struct {
		FriendID int64 `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	if userID == req.FriendID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	friends, err := h.friendRepo.AreFriends(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate friendship"})
		return
	}
	if !friends {
		c.JSON(http.StatusForbidden, gin.H{"error": "users are not friends"})
		return
	}

	chat, err := h.chatRepo.GetOrCreateDirectChat(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// CreateGroupChat creates a group with the caller as admin.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req struct {
		Name        string  `json:"name" binding:"required"`
		Description string  `json:"description"`
		MemberIDs   []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	chat, err := h.chatRepo.CreateGroupChat(c.Request.Context(), userID, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("group chat %d created", chat.ID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// ListMembers returns the chat's memberships; members only.
func (h *ChatHandler) ListMembers(c *gin.Context) {
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

	members, err := h.memberRepo.ListMembers(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// AddMember adds a user to a group chat; admins only.
func (h *ChatHandler) AddMember(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		UserID int64  `json:"user_id" binding:"required"`
		Role   string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if req.Role != models.RoleMember && req.Role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	userID := callerID(c)
	allowed, err := h.guard.CanManage(c.Request.Context(), userID, chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify role"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	membership, err := h.memberRepo.AddMember(c.Request.Context(), chatID, req.UserID, req.Role)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not add member"})
		return
	}

	h.hub.Publish(c.Request.Context(), models.Event{
		Type:       models.EventMemberAdded,
		ChatID:     chatID,
		Membership: &membership,
	})
	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("user %d added to chat %d", req.UserID, chatID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusCreated, gin.H{"membership": membership})
}

// RemoveMember removes a membership: members may leave, admins may remove
// anyone. The subscription drop happens before the response so no realtime
// event reaches the removed user afterwards.
func (h *ChatHandler) RemoveMember(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	userID := callerID(c)
	if targetID != userID {
		allowed, err := h.guard.CanManage(c.Request.Context(), userID, chatID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify role"})
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
	}

	if err := h.memberRepo.RemoveMember(c.Request.Context(), chatID, targetID); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not remove member"})
		return
	}

	// Synchronous with the mutation: the removed user must not receive
	// further events for this chat.
	h.hub.DropMember(chatID, targetID)
	h.tracker.DropUser(chatID, targetID)

	h.hub.Publish(c.Request.Context(), models.Event{
		Type:   models.EventMemberRemoved,
		ChatID: chatID,
		UserID: targetID,
	})
	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("user %d removed from chat %d", targetID, chatID), requestIDFromContext(c), auditUserID(c))
	c.Status(http.StatusNoContent)
}
