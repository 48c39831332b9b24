package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"support-chat-service/internal/chat"
	"support-chat-service/internal/middleware"
	"support-chat-service/internal/models"
	"support-chat-service/internal/observability"
	"support-chat-service/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatWebSocketHandler runs the user-side chat widget over a websocket: one
// session controller per connection, live inserts pushed as they arrive.
type ChatWebSocketHandler struct {
	svc *chat.Service
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(svc *chat.Service) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{svc: svc}
}

// Handle upgrades the connection, opens the user's session, and serves
// message/read frames until the client disconnects.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
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

	var writeMu sync.Mutex
	writeEvent := func(ev ServerEvent) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	session := chat.NewSession(h.svc, identity.UserID, identity.Email)
	session.OnMessage = func(msg models.Message) {
		if err := writeEvent(ServerEvent{Type: "message", Message: &msg}); err != nil {
			log.Printf("websocket write error conn=%s: %v", info.ConnID, err)
		}
	}

	history, err := session.Open(c.Request.Context())
	if err != nil {
		log.Printf("session open failed user=%s: %v", identity.UserID, err)
		_ = writeEvent(ServerEvent{Type: "error", Error: "failed to load conversation"})
		conn.Close()
		return
	}

	observability.IncWSActive("user")
	observability.IncWSEvent("user", "ws_connect")

	unread := session.UnreadBadge()
	_ = writeEvent(ServerEvent{Type: "history", Messages: history, Unread: &unread})

	go func() {
		// The request context dies with the handler; socket-driven store
		// calls need their own lifetime. The session applies per-call
		// timeouts.
		connCtx := context.Background()
		defer func() {
			session.Close()
			conn.Close()
			observability.DecWSActive("user")
			observability.IncWSEvent("user", "ws_disconnect")
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("user", "ws_error")
				}
				return
			}

			var frame clientFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				_ = writeEvent(ServerEvent{Type: "error", Error: "malformed frame"})
				continue
			}

			switch frame.Type {
			case "message":
				// The stored message comes back through OnMessage; only
				// failures need a direct reply. The client keeps its draft
				// on error.
				if _, err := session.Send(connCtx, frame.Content); err != nil {
					_ = writeEvent(ServerEvent{Type: "error", Error: sendErrorText(err)})
				}
			case "read":
				// The chat surface became visible: acknowledge admin
				// messages and report the cleared badge.
				session.MarkRead(connCtx)
				unread := session.UnreadBadge()
				_ = writeEvent(ServerEvent{Type: "badge", Unread: &unread})
			default:
				_ = writeEvent(ServerEvent{Type: "error", Error: "unknown frame type"})
			}
		}
	}()
}

func sendErrorText(err error) string {
	if errors.Is(err, repositories.ErrEmptyContent) {
		return "message cannot be empty"
	}
	return "failed to send message"
}
