// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
	"time"
)

// EventType identifies different event types
type EventType string

// Event types for the companion
const (
	// Conversation events
	EventTypeMessageSent     EventType = "chat.message_sent"
	EventTypeReplyReceived   EventType = "chat.reply_received"
	EventTypeChatFailed      EventType = "chat.failed"
	EventTypeHistoryCleared  EventType = "chat.history_cleared"
	EventTypeCharacterSwitch EventType = "chat.character_switched"

	// Speech events
	EventTypeTTSStarted      EventType = "tts.started"
	EventTypeTTSCompleted    EventType = "tts.completed"
	EventTypeSpeakingStarted EventType = "audio.speaking_started"
	EventTypeSpeakingStopped EventType = "audio.speaking_stopped"

	// Avatar events
	EventTypeAvatarStateChanged EventType = "avatar.state_changed"
	EventTypeEmotionChanged     EventType = "avatar.emotion_changed"

	// Credit events
	EventTypeCreditsChanged EventType = "credits.changed"
	EventTypeCreditsEmpty   EventType = "credits.empty"

	// Renderer connections
	EventTypeRendererConnected    EventType = "stream.renderer_connected"
	EventTypeRendererDisconnected EventType = "stream.renderer_disconnected"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Time time.Time
	Data map[string]any
}

// NewEvent stamps an event with the current time
func NewEvent(t EventType, data map[string]any) Event {
	return Event{Type: t, Time: time.Now(), Data: data}
}

// Handler is a function that handles events
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// EventBus is a simple pub/sub event bus. An empty EventType subscribes to
// every event.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	nextID   int
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe adds a handler for an event type and returns a func that removes it
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	return func() { b.unsubscribe(eventType, id) }
}

// SubscribeAll adds a handler for every event type
func (b *EventBus) SubscribeAll(handler Handler) func() {
	return b.Subscribe("", handler)
}

func (b *EventBus) unsubscribe(eventType EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Handler, 0, len(b.handlers[eventType])+len(b.handlers[""]))
	for _, s := range b.handlers[eventType] {
		out = append(out, s.handler)
	}
	if eventType != "" {
		for _, s := range b.handlers[""] {
			out = append(out, s.handler)
		}
	}
	return out
}

// Publish sends an event to all subscribed handlers without waiting
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
}
