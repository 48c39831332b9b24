package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"support-chat-service/internal/models"
	"support-chat-service/internal/observability"
)

// adminClient pairs a dashboard connection with its bookkeeping and a write
// lock. Broadcasts run from both the aggregator's refresh goroutine and HTTP
// handlers, and gorilla/websocket forbids concurrent writers on one conn.
type adminClient struct {
	info    ConnInfo
	writeMu sync.Mutex
}

// Hub maintains the admin dashboard's websocket connections. User-side
// sockets are fed per-conversation through their session subscription and do
// not register here.
type Hub struct {
	mu         sync.RWMutex
	adminConns map[*websocket.Conn]*adminClient
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{adminConns: make(map[*websocket.Conn]*adminClient)}
}

// AddAdminClient registers an admin dashboard connection.
func (h *Hub) AddAdminClient(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adminConns[conn] = &adminClient{info: info}
}

// RemoveAdminClient removes an admin connection.
func (h *Hub) RemoveAdminClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.adminConns, conn)
}

// BroadcastConversations pushes a fresh aggregate snapshot to every open
// admin dashboard.
func (h *Hub) BroadcastConversations(summaries []models.ConversationSummary) {
	payload, _ := json.Marshal(ServerEvent{Type: "conversations", Conversations: summaries})

	h.mu.RLock()
	clients := make(map[*websocket.Conn]*adminClient, len(h.adminConns))
	for conn, client := range h.adminConns {
		clients[conn] = client
	}
	h.mu.RUnlock()

	for conn, client := range clients {
		client.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		client.writeMu.Unlock()
		if err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveAdminClient(conn)
			observability.IncWSEvent("admin", "ws_error")
		}
	}
}
