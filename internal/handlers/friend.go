package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
)

// FriendHandler manages friend requests and friendships.
type FriendHandler struct {
	friendRepo repositories.FriendRepository
	emitter    *telemetry.AuditEmitter
}

// NewFriendHandler builds a FriendHandler.
func NewFriendHandler(friendRepo repositories.FriendRepository, emitter *telemetry.AuditEmitter) *FriendHandler {
	return &FriendHandler{friendRepo: friendRepo, emitter: emitter}
}

// SendRequest creates a pending friend request.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		ReceiverID int64 `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	if userID == req.ReceiverID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot befriend yourself"})
		return
	}

	request, err := h.friendRepo.CreateRequest(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not create request"})
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("friend request %d sent to user %d", request.ID, req.ReceiverID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusCreated, gin.H{"request": request})
}

// AcceptRequest accepts a pending request addressed to the caller. Repeat
// accepts return the same accepted request; the friendship row is created
// exactly once.
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	requestID, ok := pathID(c, "request_id")
	if !ok {
		return
	}

	request, err := h.friendRepo.Accept(c.Request.Context(), requestID, callerID(c))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not accept request"})
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("friend request %d accepted", requestID), requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusOK, gin.H{"request": request})
}

// DeclineRequest declines a pending request addressed to the caller.
func (h *FriendHandler) DeclineRequest(c *gin.Context) {
	requestID, ok := pathID(c, "request_id")
	if !ok {
		return
	}

	request, err := h.friendRepo.Decline(c.Request.Context(), requestID, callerID(c))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not decline request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": request})
}

// ListFriends returns the caller's friendships.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	friendships, err := h.friendRepo.ListFriendships(c.Request.Context(), callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load friends"})
		return
	}
	if friendships == nil {
		friendships = []models.Friendship{}
	}
	c.JSON(http.StatusOK, gin.H{"friends": friendships})
}

// ListIncoming returns pending requests addressed to the caller.
func (h *FriendHandler) ListIncoming(c *gin.Context) {
	requests, err := h.friendRepo.ListIncoming(c.Request.Context(), callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
