package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-backend/internal/models"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func auditUserID(c *gin.Context) *int64 {
	if val, ok := c.Get("userID"); ok {
		if id, ok := val.(int64); ok && id != 0 {
			return &id
		}
	}
	return nil
}

func callerID(c *gin.Context) int64 {
	if val, ok := c.Get("userID"); ok {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// errorStatus maps the store error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is transient I/O and reported as a 500 for the
// client to retry.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// parseCursor reads the keyset cursor from after_ts/after_id query params.
// Both absent means "from the beginning".
func parseCursor(c *gin.Context) (models.Cursor, bool) {
	tsParam := c.Query("after_ts")
	idParam := c.Query("after_id")
	if tsParam == "" && idParam == "" {
		return models.Cursor{}, true
	}

	ts, err := time.Parse(time.RFC3339Nano, tsParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_ts"})
		return models.Cursor{}, false
	}
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_id"})
		return models.Cursor{}, false
	}
	return models.Cursor{CreatedAt: ts, ID: id}, true
}
