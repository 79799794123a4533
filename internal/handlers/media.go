package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/blob"
)

// Media uploads are capped well below typical proxy limits.
const maxUploadBytes = 25 << 20

// MediaHandler accepts blob uploads and returns the stored URL, which the
// client then sends as message content with the matching type tag.
type MediaHandler struct {
	store blob.Store
}

// NewMediaHandler builds a MediaHandler.
func NewMediaHandler(store blob.Store) *MediaHandler {
	return &MediaHandler{store: store}
}

// Upload stores the request body and returns its URL.
func (h *MediaHandler) Upload(c *gin.Context) {
	contentType := c.ContentType()
	if contentType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing content type"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}

	url, err := h.store.Put(data, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store blob"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
