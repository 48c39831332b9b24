package chat

import (
	"context"
	"log"
	"strings"

	"support-chat-service/internal/events"
	"support-chat-service/internal/models"
	"support-chat-service/internal/observability"
	"support-chat-service/internal/repositories"
)

// Notifier delivers best-effort out-of-band notifications for admin replies.
type Notifier interface {
	Notify(conversationID string, messageContent string, recipient string)
}

// Service is the use-case layer over the chat stores: it owns the write
// paths, publishes change events after durable commits, and triggers the
// notification dispatcher for admin sends.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	profiles      repositories.ProfileRepository
	broker        *events.Broker
	notifier      Notifier
}

// NewService constructs a Service.
func NewService(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	profiles repositories.ProfileRepository,
	broker *events.Broker,
	notifier Notifier,
) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		broker:        broker,
		notifier:      notifier,
	}
}

// Open returns the user's conversation (creating it on first contact) and its
// full history. The email from the identity token refreshes the profile so
// notifications have a recipient address.
func (s *Service) Open(ctx context.Context, userID string, email string) (models.Conversation, []models.Message, error) {
	if email != "" {
		if err := s.profiles.Upsert(ctx, models.Profile{UserID: userID, Email: email}); err != nil {
			log.Printf("profile upsert failed user=%s: %v", userID, err)
		}
	}

	conv, err := s.conversations.GetOrCreate(ctx, userID)
	if err != nil {
		return models.Conversation{}, nil, err
	}

	msgs, err := s.messages.ListMessages(ctx, conv.ID)
	if err != nil {
		return models.Conversation{}, nil, err
	}
	return conv, msgs, nil
}

// Conversation fetches a conversation by id.
func (s *Service) Conversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	return s.conversations.Get(ctx, conversationID)
}

// Messages returns the ordered history of a conversation.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.messages.ListMessages(ctx, conversationID)
}

// Send validates and stores a message, then fans the insert out to live
// subscribers. For admin sends it also kicks off the email notification,
// strictly after the durable write: a notification failure never fails the
// send.
func (s *Service) Send(ctx context.Context, conversationID string, senderID string, content string, asAdmin bool) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, repositories.ErrEmptyContent
	}

	msg, err := s.messages.Append(ctx, conversationID, senderID, content, asAdmin)
	if err != nil {
		return models.Message{}, err
	}

	role := "user"
	if asAdmin {
		role = "admin"
	}
	observability.IncMessageSent(role)

	s.broker.Publish(events.ChangeEvent{
		Kind:           events.KindInsert,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})

	if asAdmin && s.notifier != nil {
		s.notifyOwner(ctx, conversationID, content)
	}
	return msg, nil
}

// MarkRead acknowledges the opposite role's unread messages. Best-effort for
// callers: they log and carry on when this fails.
func (s *Service) MarkRead(ctx context.Context, conversationID string, fromAdmin bool) error {
	affected, err := s.messages.MarkRead(ctx, conversationID, fromAdmin)
	if err != nil {
		return err
	}
	if affected > 0 {
		s.broker.Publish(events.ChangeEvent{
			Kind:           events.KindUpdate,
			ConversationID: conversationID,
		})
	}
	return nil
}

// Subscribe registers a live-insert callback for one conversation.
func (s *Service) Subscribe(conversationID string, fn func(events.ChangeEvent)) func() {
	return s.broker.Subscribe(conversationID, fn)
}

// SubscribeAll registers a callback for any message change in the store.
func (s *Service) SubscribeAll(fn func(events.ChangeEvent)) func() {
	return s.broker.SubscribeAll(fn)
}

func (s *Service) notifyOwner(ctx context.Context, conversationID string, content string) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		log.Printf("notification skipped conversation=%s: %v", conversationID, err)
		return
	}
	profile, err := s.profiles.Get(ctx, conv.UserID)
	if err != nil {
		log.Printf("notification skipped conversation=%s: %v", conversationID, err)
		return
	}
	s.notifier.Notify(conversationID, content, profile.Email)
}
