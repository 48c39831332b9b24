package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"support-chat-service/internal/chat"
	"support-chat-service/internal/middleware"
	"support-chat-service/internal/observability"
)

// AdminWebSocketHandler streams aggregate snapshots to the admin dashboard.
// Every store change ends up here as a refreshed conversation list.
type AdminWebSocketHandler struct {
	hub        *Hub
	aggregator *chat.Aggregator
}

// NewAdminWebSocketHandler constructs an AdminWebSocketHandler.
func NewAdminWebSocketHandler(hub *Hub, aggregator *chat.Aggregator) *AdminWebSocketHandler {
	return &AdminWebSocketHandler{hub: hub, aggregator: aggregator}
}

// Handle upgrades the connection, sends the current snapshot, and keeps the
// client registered for broadcast refreshes until it disconnects.
func (h *AdminWebSocketHandler) Handle(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok || !identity.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}

	ctx, span := otel.Tracer("support-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	snapshot := h.aggregator.Snapshot()
	payload, _ := json.Marshal(ServerEvent{Type: "conversations", Conversations: snapshot})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		return
	}

	h.hub.AddAdminClient(conn, info)
	observability.IncWSActive("admin")
	observability.IncWSEvent("admin", "ws_connect")

	// Keep connection alive and clean on close.
	go func() {
		defer func() {
			h.hub.RemoveAdminClient(conn)
			observability.DecWSActive("admin")
			observability.IncWSEvent("admin", "ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("admin", "ws_error")
				}
				return
			}
		}
	}()
}
