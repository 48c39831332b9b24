package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat-service/internal/chat"
	"support-chat-service/internal/events"
	"support-chat-service/internal/middleware"
	"support-chat-service/internal/mocks"
	"support-chat-service/internal/models"
	"support-chat-service/internal/telemetry"
)

type adminFixture struct {
	convs    *mocks.ConversationRepositoryMock
	msgs     *mocks.MessageRepositoryMock
	profiles *mocks.ProfileRepositoryMock
	notifier *mocks.NotifierMock
	handler  *AdminHandler
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		convs:    new(mocks.ConversationRepositoryMock),
		msgs:     new(mocks.MessageRepositoryMock),
		profiles: new(mocks.ProfileRepositoryMock),
		notifier: new(mocks.NotifierMock),
	}
	svc := chat.NewService(f.convs, f.msgs, f.profiles, events.NewBroker(), f.notifier)
	aggregator := chat.NewAggregator(svc, f.convs, f.msgs, f.profiles)
	audit := telemetry.NewAuditEmitter(nil, "audit.chat", "support-chat-service", "test")
	f.handler = NewAdminHandler(svc, aggregator, audit)
	return f
}

func setupAdminRouter(handler *AdminHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("identity", middleware.Identity{UserID: "admin", Email: "ops@example.com", IsAdmin: true})
		c.Next()
	})
	r.GET("/admin/conversations", handler.ListConversations)
	r.GET("/admin/conversations/:conversation_id/messages", handler.GetConversationMessages)
	r.POST("/admin/conversations/:conversation_id/messages", handler.PostMessage)
	r.POST("/admin/conversations/:conversation_id/read", handler.MarkRead)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	f := newAdminFixture()
	router := setupAdminRouter(f.handler)

	now := time.Now()
	f.convs.On("List", mock.Anything).Return([]models.Conversation{{ID: "c1", UserID: "u1", LastMessageAt: now}}, nil).Once()
	f.profiles.On("ByUserIDs", mock.Anything, []string{"u1"}).
		Return(map[string]models.Profile{"u1": {UserID: "u1", Email: "u1@example.com"}}, nil).Once()
	f.msgs.On("CountUnread", mock.Anything, "c1", false).Return(4, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, 4, resp.Conversations[0].UnreadCount)
	assert.Equal(t, "u1@example.com", resp.Conversations[0].Email)
}

func TestListConversationsStoreError(t *testing.T) {
	f := newAdminFixture()
	router := setupAdminRouter(f.handler)

	f.convs.On("List", mock.Anything).Return(([]models.Conversation)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetConversationMessagesMarksRead(t *testing.T) {
	f := newAdminFixture()
	router := setupAdminRouter(f.handler)

	f.convs.On("Get", mock.Anything, "c1").Return(models.Conversation{ID: "c1", UserID: "u1"}, nil).Once()
	f.msgs.On("ListMessages", mock.Anything, "c1").
		Return([]models.Message{{ID: "m1", ConversationID: "c1", Content: "Hello"}}, nil).Once()
	f.msgs.On("MarkRead", mock.Anything, "c1", true).Return(int64(1), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations/c1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	f.msgs.AssertExpectations(t)
}

func TestGetConversationMessagesNotFound(t *testing.T) {
	f := newAdminFixture()
	router := setupAdminRouter(f.handler)

	f.convs.On("Get", mock.Anything, "missing").Return(models.Conversation{}, repoNotFound()).Once()

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations/missing/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPostMessageNotifiesUser(t *testing.T) {
	f := newAdminFixture()
	router := setupAdminRouter(f.handler)

	conv := models.Conversation{ID: "c1", UserID: "u1"}
	f.convs.On("Get", mock.Anything, "c1").Return(conv, nil).Twice()
	f.msgs.On("Append", mock.Anything, "c1", "admin", "Hi there", true).
		Return(models.Message{ID: "m2", ConversationID: "c1", Content: "Hi there", IsAdmin: true}, nil).Once()
	f.profiles.On("Get", mock.Anything, "u1").Return(models.Profile{UserID: "u1", Email: "u1@example.com"}, nil).Once()
	f.notifier.On("Notify", "c1", "Hi there", "u1@example.com").Once()

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/c1/messages", bytes.NewBufferString(`{"content":"Hi there"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	f.notifier.AssertExpectations(t)
}

func TestAdminMarkReadBestEffort(t *testing.T) {
	f := newAdminFixture()
	router := setupAdminRouter(f.handler)

	f.msgs.On("MarkRead", mock.Anything, "c1", true).Return(int64(0), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/c1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminMarkReadEmitsAuditEvent(t *testing.T) {
	f := newAdminFixture()
	publisher := new(mocks.PublisherMock)
	svc := chat.NewService(f.convs, f.msgs, f.profiles, events.NewBroker(), f.notifier)
	aggregator := chat.NewAggregator(svc, f.convs, f.msgs, f.profiles)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "support-chat-service", "test")
	router := setupAdminRouter(NewAdminHandler(svc, aggregator, audit))

	f.msgs.On("MarkRead", mock.Anything, "c1", true).Return(int64(1), nil).Once()
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(telemetry.AuditEnvelope)
		return ok && strings.Contains(envelope.Payload.Text, "messages read conversation=c1")
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/c1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	publisher.AssertExpectations(t)
}
