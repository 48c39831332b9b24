package events

import (
	"sync"

	"support-chat-service/internal/models"
)

// Kind classifies a store change.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
)

// ChangeEvent describes a message-level change in the store. Message is set
// for inserts; read-state sweeps carry only the conversation id.
type ChangeEvent struct {
	Kind           Kind
	ConversationID string
	Message        *models.Message
}

// Broker fans store changes out to live listeners. Delivery is at-least-once
// and carries no ordering guarantee relative to concurrent reads; consumers
// dedupe by message id and order by (created_at, id).
type Broker struct {
	mu      sync.RWMutex
	nextID  int
	perConv map[string]map[int]func(ChangeEvent)
	global  map[int]func(ChangeEvent)
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		perConv: make(map[string]map[int]func(ChangeEvent)),
		global:  make(map[int]func(ChangeEvent)),
	}
}

// Subscribe registers a callback for message inserts in one conversation.
// The returned func removes the registration.
func (b *Broker) Subscribe(conversationID string, fn func(ChangeEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if _, ok := b.perConv[conversationID]; !ok {
		b.perConv[conversationID] = make(map[int]func(ChangeEvent))
	}
	b.perConv[conversationID][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.perConv[conversationID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.perConv, conversationID)
			}
		}
	}
}

// SubscribeAll registers a callback for any message insert or update in any
// conversation. Used by the admin aggregate refresh.
func (b *Broker) SubscribeAll(fn func(ChangeEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.global[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.global, id)
	}
}

// Publish delivers an event to matching subscribers. Callbacks run outside
// the broker lock so a subscriber may unsubscribe from within its callback.
func (b *Broker) Publish(ev ChangeEvent) {
	b.mu.RLock()
	var targets []func(ChangeEvent)
	if ev.Kind == KindInsert {
		for _, fn := range b.perConv[ev.ConversationID] {
			targets = append(targets, fn)
		}
	}
	for _, fn := range b.global {
		targets = append(targets, fn)
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}
