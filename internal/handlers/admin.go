package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chat-service/internal/chat"
	"support-chat-service/internal/middleware"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/telemetry"
)

// AdminHandler serves the operator dashboard endpoints.
type AdminHandler struct {
	svc        *chat.Service
	aggregator *chat.Aggregator
	audit      *telemetry.AuditEmitter
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(svc *chat.Service, aggregator *chat.Aggregator, audit *telemetry.AuditEmitter) *AdminHandler {
	return &AdminHandler{svc: svc, aggregator: aggregator, audit: audit}
}

// ListConversations returns every conversation with unread counts, most
// recent activity first.
func (h *AdminHandler) ListConversations(c *gin.Context) {
	summaries, err := h.aggregator.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// GetConversationMessages loads one conversation for the admin view. Opening
// it acknowledges the user's unread messages and re-triggers the aggregate.
func (h *AdminHandler) GetConversationMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if _, err := h.svc.Conversation(c.Request.Context(), conversationID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}

	msgs, err := h.aggregator.SelectConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores an admin reply. The email notification is dispatched
// after the durable write and never affects the response.
func (h *AdminHandler) PostMessage(c *gin.Context) {
	identity, _ := middleware.IdentityFromContext(c)
	conversationID := c.Param("conversation_id")

	if _, err := h.svc.Conversation(c.Request.Context(), conversationID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), conversationID, identity.UserID, req.Content, true)
	if err != nil {
		if errors.Is(err, repositories.ErrEmptyContent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message cannot be empty"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.audit.Emit(c.Request.Context(), "info",
		fmt.Sprintf("admin reply conversation=%s message=%s", conversationID, msg.ID),
		requestIDFromContext(c), auditUserID(c))

	c.JSON(http.StatusCreated, msg)
}

// MarkRead acknowledges user-authored messages in a conversation.
func (h *AdminHandler) MarkRead(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if err := h.svc.MarkRead(c.Request.Context(), conversationID, true); err != nil {
		log.Printf("mark read failed conversation=%s: %v", conversationID, err)
	} else {
		h.audit.Emit(c.Request.Context(), "info",
			fmt.Sprintf("messages read conversation=%s", conversationID),
			requestIDFromContext(c), auditUserID(c))
	}
	c.Status(http.StatusNoContent)
}
