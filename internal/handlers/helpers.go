package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"support-chat-service/internal/middleware"
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

func auditUserID(c *gin.Context) *string {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok || identity.UserID == "" {
		return nil
	}
	id := identity.UserID
	return &id
}
