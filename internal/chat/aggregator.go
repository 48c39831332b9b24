package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"support-chat-service/internal/events"
	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
)

// Aggregator produces the admin's conversation list: every conversation
// annotated with the owner's profile and an unread count, most recent
// activity first. Any message change anywhere triggers a full recompute;
// conversation volume is single-operator scale, so the aggregate stays cheap.
type Aggregator struct {
	svc           *Service
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	profiles      repositories.ProfileRepository
	opTimeout     time.Duration

	// OnRefresh, when set before Start, receives each new snapshot.
	OnRefresh func([]models.ConversationSummary)

	mu       sync.Mutex
	snapshot []models.ConversationSummary

	refreshCh   chan struct{}
	unsubscribe func()
	done        chan struct{}
}

// NewAggregator constructs an Aggregator.
func NewAggregator(
	svc *Service,
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	profiles repositories.ProfileRepository,
) *Aggregator {
	return &Aggregator{
		svc:           svc,
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		opTimeout:     defaultOpTimeout,
		refreshCh:     make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start performs an initial refresh and then recomputes whenever the store
// reports a message change. Change bursts coalesce into one pending refresh.
func (a *Aggregator) Start(ctx context.Context) error {
	if _, err := a.Refresh(ctx); err != nil {
		return err
	}

	a.unsubscribe = a.svc.SubscribeAll(func(events.ChangeEvent) {
		select {
		case a.refreshCh <- struct{}{}:
		default:
		}
	})

	go func() {
		for {
			select {
			case <-a.done:
				return
			case <-a.refreshCh:
				opCtx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
				if _, err := a.Refresh(opCtx); err != nil {
					log.Printf("aggregate refresh failed: %v", err)
				}
				cancel()
			}
		}
	}()
	return nil
}

// Stop tears down the subscription and the refresh loop.
func (a *Aggregator) Stop() {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	select {
	case <-a.done:
	default:
		close(a.done)
	}
}

// Refresh recomputes the full aggregate. Unread counts are independent reads,
// fetched concurrently to bound latency to one round-trip depth. A failed
// count degrades that one conversation to zero rather than failing the list.
func (a *Aggregator) Refresh(ctx context.Context) ([]models.ConversationSummary, error) {
	convs, err := a.conversations.List(ctx)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(convs))
	for _, conv := range convs {
		userIDs = append(userIDs, conv.UserID)
	}
	profileByUser, err := a.profiles.ByUserIDs(ctx, userIDs)
	if err != nil {
		log.Printf("profile load failed: %v", err)
		profileByUser = map[string]models.Profile{}
	}

	summaries := make([]models.ConversationSummary, len(convs))
	var wg sync.WaitGroup
	for i, conv := range convs {
		profile := profileByUser[conv.UserID]
		summaries[i] = models.ConversationSummary{
			Conversation: conv,
			Email:        profile.Email,
			PANNumber:    profile.PANNumber,
		}

		wg.Add(1)
		go func(i int, conversationID string) {
			defer wg.Done()
			count, err := a.messages.CountUnread(ctx, conversationID, false)
			if err != nil {
				log.Printf("unread count failed conversation=%s: %v", conversationID, err)
				return
			}
			summaries[i].UnreadCount = count
		}(i, conv.ID)
	}
	wg.Wait()

	a.mu.Lock()
	a.snapshot = summaries
	onRefresh := a.OnRefresh
	a.mu.Unlock()

	if onRefresh != nil {
		onRefresh(append([]models.ConversationSummary(nil), summaries...))
	}
	return summaries, nil
}

// Snapshot returns the last computed aggregate.
func (a *Aggregator) Snapshot() []models.ConversationSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ConversationSummary(nil), a.snapshot...)
}

// SelectConversation loads a conversation's history for the admin view,
// acknowledges the user-authored unread messages, and re-triggers the
// aggregate so unread badges update everywhere. MarkRead is best-effort.
func (a *Aggregator) SelectConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := a.svc.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if err := a.svc.MarkRead(ctx, conversationID, true); err != nil {
		log.Printf("mark read failed conversation=%s: %v", conversationID, err)
	}

	// MarkRead publishes an update event only when rows changed; request a
	// refresh regardless so a re-selected conversation still settles.
	select {
	case a.refreshCh <- struct{}{}:
	default:
	}
	return msgs, nil
}
