package ws

import (
	"crypto/rand"
	"encoding/hex"

	"support-chat-service/internal/models"
)

// ServerEvent is the frame pushed to websocket clients.
type ServerEvent struct {
	Type          string                       `json:"type"`
	Message       *models.Message              `json:"message,omitempty"`
	Messages      []models.Message             `json:"messages,omitempty"`
	Conversations []models.ConversationSummary `json:"conversations,omitempty"`
	Unread        *int                         `json:"unread,omitempty"`
	Error         string                       `json:"error,omitempty"`
}

// clientFrame is what widget clients send over the socket.
type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
