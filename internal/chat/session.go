package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"support-chat-service/internal/events"
	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
)

// SessionState is the lifecycle of a user-side chat session.
type SessionState string

const (
	StateIdle    SessionState = "idle"
	StateLoading SessionState = "loading"
	StateReady   SessionState = "ready"
	StateSending SessionState = "sending"
)

var (
	ErrSessionNotReady = errors.New("session not ready")
	ErrSessionBusy     = errors.New("send already in flight")
)

const defaultOpTimeout = 10 * time.Second

// Session owns one user's view of their conversation: the local message list,
// the live subscription, and the unread badge. Live delivery is at-least-once
// and unordered, so the session dedupes by message id and keeps the list
// sorted by (created_at, id).
type Session struct {
	svc       *Service
	userID    string
	email     string
	opTimeout time.Duration

	// OnMessage, when set before Open, is invoked for each live insert that
	// survives dedup. Called without the session lock held.
	OnMessage func(models.Message)

	mu           sync.Mutex
	state        SessionState
	conversation models.Conversation
	msgs         []models.Message
	seen         map[string]struct{}
	unsubscribe  func()
}

// NewSession constructs an idle session for the given user identity.
func NewSession(svc *Service, userID string, email string) *Session {
	return &Session{
		svc:       svc,
		userID:    userID,
		email:     email,
		opTimeout: defaultOpTimeout,
		state:     StateIdle,
		seen:      make(map[string]struct{}),
	}
}

// Open loads (or lazily creates) the conversation and its history, then
// subscribes for live inserts. idle -> loading -> ready.
func (s *Session) Open(ctx context.Context) ([]models.Message, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, errors.New("session already open")
	}
	s.state = StateLoading
	s.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	conv, msgs, err := s.svc.Open(opCtx, s.userID, s.email)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.conversation = conv
	s.msgs = msgs
	for _, m := range msgs {
		s.seen[m.ID] = struct{}{}
	}
	s.unsubscribe = s.svc.Subscribe(conv.ID, s.handleEvent)
	s.state = StateReady
	history := append([]models.Message(nil), s.msgs...)
	s.mu.Unlock()

	return history, nil
}

// Send validates and submits a message. Empty or whitespace-only input is
// rejected before any store call. ready -> sending -> ready; on failure the
// caller keeps the draft and may retry.
func (s *Session) Send(ctx context.Context, content string) (models.Message, error) {
	if isBlank(content) {
		return models.Message{}, repositories.ErrEmptyContent
	}

	s.mu.Lock()
	switch s.state {
	case StateSending:
		s.mu.Unlock()
		return models.Message{}, ErrSessionBusy
	case StateReady:
	default:
		s.mu.Unlock()
		return models.Message{}, ErrSessionNotReady
	}
	s.state = StateSending
	conversationID := s.conversation.ID
	s.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	msg, err := s.svc.Send(opCtx, conversationID, s.userID, content, false)

	s.mu.Lock()
	s.state = StateReady
	if err == nil {
		s.insertLocked(msg)
	}
	s.mu.Unlock()

	return msg, err
}

// MarkRead acknowledges admin-authored messages when the chat surface becomes
// visible. Best-effort: failures are logged, the local view is updated anyway.
func (s *Session) MarkRead(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateLoading {
		s.mu.Unlock()
		return
	}
	conversationID := s.conversation.ID
	for i := range s.msgs {
		if s.msgs[i].IsAdmin {
			s.msgs[i].IsRead = true
		}
	}
	s.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.svc.MarkRead(opCtx, conversationID, false); err != nil {
		log.Printf("mark read failed conversation=%s: %v", conversationID, err)
	}
}

// UnreadBadge counts admin-authored messages the user has not seen yet,
// recomputed from local state.
func (s *Session) UnreadBadge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.msgs {
		if m.IsAdmin && !m.IsRead {
			count++
		}
	}
	return count
}

// Conversation returns the session's conversation.
func (s *Session) Conversation() models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

// Messages returns a copy of the local ordered message list.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.msgs...)
}

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears down the live subscription. In-flight sends complete or fail
// independently.
func (s *Session) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.state = StateIdle
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *Session) handleEvent(ev events.ChangeEvent) {
	if ev.Kind != events.KindInsert || ev.Message == nil {
		return
	}

	s.mu.Lock()
	added := s.insertLocked(*ev.Message)
	onMessage := s.OnMessage
	s.mu.Unlock()

	if added && onMessage != nil {
		onMessage(*ev.Message)
	}
}

// insertLocked adds a message keeping (created_at, id) order, dropping
// duplicate deliveries. Caller holds s.mu.
func (s *Session) insertLocked(msg models.Message) bool {
	if _, ok := s.seen[msg.ID]; ok {
		return false
	}
	s.seen[msg.ID] = struct{}{}

	i := len(s.msgs)
	for i > 0 {
		prev := s.msgs[i-1]
		if prev.CreatedAt.Before(msg.CreatedAt) ||
			(prev.CreatedAt.Equal(msg.CreatedAt) && prev.ID < msg.ID) {
			break
		}
		i--
	}
	s.msgs = append(s.msgs, models.Message{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = msg
	return true
}
