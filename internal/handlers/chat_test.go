package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat-service/internal/chat"
	"support-chat-service/internal/events"
	"support-chat-service/internal/middleware"
	"support-chat-service/internal/mocks"
	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/telemetry"
)

func repoNotFound() error {
	return repositories.ErrConversationNotFound
}

type chatFixture struct {
	convs    *mocks.ConversationRepositoryMock
	msgs     *mocks.MessageRepositoryMock
	profiles *mocks.ProfileRepositoryMock
	handler  *ChatHandler
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		convs:    new(mocks.ConversationRepositoryMock),
		msgs:     new(mocks.MessageRepositoryMock),
		profiles: new(mocks.ProfileRepositoryMock),
	}
	svc := chat.NewService(f.convs, f.msgs, f.profiles, events.NewBroker(), nil)
	f.handler = NewChatHandler(svc, telemetry.NewAuditEmitter(nil, "audit.chat", "support-chat-service", "test"))
	return f
}

func setupChatRouter(handler *ChatHandler, identity middleware.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("identity", identity)
		c.Next()
	})
	r.POST("/chat/open", handler.OpenChat)
	r.GET("/chat/:conversation_id/messages", handler.GetMessages)
	r.POST("/chat/:conversation_id/messages", handler.PostMessage)
	r.POST("/chat/:conversation_id/read", handler.MarkRead)
	return r
}

func userIdentity() middleware.Identity {
	return middleware.Identity{UserID: "u1", Email: "u1@example.com"}
}

func TestOpenChatSuccess(t *testing.T) {
	f := newChatFixture()
	router := setupChatRouter(f.handler, userIdentity())

	f.profiles.On("Upsert", mock.Anything, models.Profile{UserID: "u1", Email: "u1@example.com"}).Return(nil).Once()
	f.convs.On("GetOrCreate", mock.Anything, "u1").Return(models.Conversation{ID: "c1", UserID: "u1"}, nil).Once()
	f.msgs.On("ListMessages", mock.Anything, "c1").Return([]models.Message{
		{ID: "m1", ConversationID: "c1", IsAdmin: true},
		{ID: "m2", ConversationID: "c1", IsAdmin: false},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/open", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversation models.Conversation `json:"conversation"`
		Messages     []models.Message    `json:"messages"`
		UnreadCount  int                 `json:"unread_count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "c1", resp.Conversation.ID)
	assert.Len(t, resp.Messages, 2)
	assert.Equal(t, 1, resp.UnreadCount)
	f.convs.AssertExpectations(t)
}

func TestOpenChatStoreError(t *testing.T) {
	f := newChatFixture()
	router := setupChatRouter(f.handler, userIdentity())

	f.profiles.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()
	f.convs.On("GetOrCreate", mock.Anything, "u1").Return(models.Conversation{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/open", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetMessagesForbiddenForOtherUser(t *testing.T) {
	f := newChatFixture()
	router := setupChatRouter(f.handler, userIdentity())

	f.convs.On("Get", mock.Anything, "c9").Return(models.Conversation{ID: "c9", UserID: "someone-else"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/c9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	f.msgs.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
}

func TestPostMessageSuccess(t *testing.T) {
	f := newChatFixture()
	router := setupChatRouter(f.handler, userIdentity())

	f.convs.On("Get", mock.Anything, "c1").Return(models.Conversation{ID: "c1", UserID: "u1"}, nil).Once()
	f.msgs.On("Append", mock.Anything, "c1", "u1", "Hello", false).
		Return(models.Message{ID: "m1", ConversationID: "c1", Content: "Hello"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/c1/messages", bytes.NewBufferString(`{"content":"Hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	f.msgs.AssertExpectations(t)
}

func TestPostMessageWhitespaceRejectedBeforeStore(t *testing.T) {
	f := newChatFixture()
	router := setupChatRouter(f.handler, userIdentity())

	f.convs.On("Get", mock.Anything, "c1").Return(models.Conversation{ID: "c1", UserID: "u1"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/c1/messages", bytes.NewBufferString(`{"content":"   "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.msgs.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageConversationNotFound(t *testing.T) {
	f := newChatFixture()
	router := setupChatRouter(f.handler, userIdentity())

	f.convs.On("Get", mock.Anything, "missing").Return(models.Conversation{}, repoNotFound()).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/missing/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkReadBestEffort(t *testing.T) {
	f := newChatFixture()
	router := setupChatRouter(f.handler, userIdentity())

	f.convs.On("Get", mock.Anything, "c1").Return(models.Conversation{ID: "c1", UserID: "u1"}, nil).Once()
	f.msgs.On("MarkRead", mock.Anything, "c1", false).Return(int64(0), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/c1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Read-marking failures never surface to the user.
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMarkReadEmitsAuditEvent(t *testing.T) {
	convs := new(mocks.ConversationRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	profiles := new(mocks.ProfileRepositoryMock)
	publisher := new(mocks.PublisherMock)
	svc := chat.NewService(convs, msgs, profiles, events.NewBroker(), nil)
	handler := NewChatHandler(svc, telemetry.NewAuditEmitter(publisher, "audit.chat", "support-chat-service", "test"))
	router := setupChatRouter(handler, userIdentity())

	convs.On("Get", mock.Anything, "c1").Return(models.Conversation{ID: "c1", UserID: "u1"}, nil).Once()
	msgs.On("MarkRead", mock.Anything, "c1", false).Return(int64(2), nil).Once()
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(telemetry.AuditEnvelope)
		return ok && strings.Contains(envelope.Payload.Text, "messages read conversation=c1")
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/c1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	publisher.AssertExpectations(t)
}
