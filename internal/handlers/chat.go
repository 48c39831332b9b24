package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chat-service/internal/chat"
	"support-chat-service/internal/middleware"
	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/telemetry"
)

// ChatHandler serves the user-facing chat endpoints.
type ChatHandler struct {
	svc   *chat.Service
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(svc *chat.Service, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{svc: svc, audit: audit}
}

// OpenChat returns the caller's conversation and history, creating the
// conversation on first contact.
func (h *ChatHandler) OpenChat(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	conv, msgs, err := h.svc.Open(c.Request.Context(), identity.UserID, identity.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open conversation"})
		return
	}

	unread := 0
	for _, m := range msgs {
		if m.IsAdmin && !m.IsRead {
			unread++
		}
	}

	h.audit.Emit(c.Request.Context(), "info",
		fmt.Sprintf("conversation opened conversation=%s", conv.ID),
		requestIDFromContext(c), auditUserID(c))

	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"messages":     msgs,
		"unread_count": unread,
	})
}

// GetMessages returns the caller's full conversation history.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	conv, ok := h.ownConversation(c)
	if !ok {
		return
	}

	msgs, err := h.svc.Messages(c.Request.Context(), conv.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a user message in the caller's conversation.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	identity, _ := middleware.IdentityFromContext(c)
	conv, ok := h.ownConversation(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), conv.ID, identity.UserID, req.Content, false)
	if err != nil {
		if errors.Is(err, repositories.ErrEmptyContent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message cannot be empty"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.audit.Emit(c.Request.Context(), "info",
		fmt.Sprintf("message sent conversation=%s message=%s", conv.ID, msg.ID),
		requestIDFromContext(c), auditUserID(c))

	c.JSON(http.StatusCreated, msg)
}

// MarkRead acknowledges admin-authored messages for the caller. Best-effort:
// a store failure is logged and the request still succeeds.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	conv, ok := h.ownConversation(c)
	if !ok {
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), conv.ID, false); err != nil {
		log.Printf("mark read failed conversation=%s: %v", conv.ID, err)
	} else {
		h.audit.Emit(c.Request.Context(), "info",
			fmt.Sprintf("messages read conversation=%s", conv.ID),
			requestIDFromContext(c), auditUserID(c))
	}
	c.Status(http.StatusNoContent)
}

// ownConversation resolves the :conversation_id param and verifies the caller
// owns it. Writes the error response itself when the check fails.
func (h *ChatHandler) ownConversation(c *gin.Context) (models.Conversation, bool) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return models.Conversation{}, false
	}

	conv, err := h.svc.Conversation(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return models.Conversation{}, false
	}
	if conv.UserID != identity.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your conversation"})
		return models.Conversation{}, false
	}
	return conv, true
}
