// Package voice keeps the spoken conversation history for the companion.
package voice

import (
	"sync"
	"time"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
	"github.com/normanking/cortexcompanion/internal/chat"
)

// Exchange is one user message and the reply that was spoken for it.
type Exchange struct {
	UserText      string           `json:"userText"`
	AssistantText string           `json:"assistantText"`
	Emotion       avatar3d.Emotion `json:"emotion"`
	Timestamp     time.Time        `json:"timestamp"`
}

type ConversationConfig struct {
	MaxExchanges      int           // oldest exchanges fall off past this
	InactivityTimeout time.Duration // history is forgotten after this much silence
}

func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		MaxExchanges:      10,
		InactivityTimeout: 5 * time.Minute,
	}
}

// ConversationManager holds the window of history sent with each chat
// request. A conversation left idle longer than InactivityTimeout starts
// over.
type ConversationManager struct {
	config ConversationConfig
	now    func() time.Time

	mu        sync.RWMutex
	exchanges []Exchange
	active    time.Time
}

func NewConversationManager(config ConversationConfig) *ConversationManager {
	def := DefaultConversationConfig()
	if config.MaxExchanges <= 0 {
		config.MaxExchanges = def.MaxExchanges
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = def.InactivityTimeout
	}
	return &ConversationManager{
		config: config,
		now:    time.Now,
		active: time.Now(),
	}
}

// AddExchange appends a turn, dropping stale history first.
func (cm *ConversationManager) AddExchange(userText, assistantText string, emotion avatar3d.Emotion) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := cm.now()
	if cm.staleAt(now) {
		cm.exchanges = nil
	}
	cm.exchanges = append(cm.exchanges, Exchange{
		UserText:      userText,
		AssistantText: assistantText,
		Emotion:       emotion,
		Timestamp:     now,
	})
	if over := len(cm.exchanges) - cm.config.MaxExchanges; over > 0 {
		cm.exchanges = append([]Exchange(nil), cm.exchanges[over:]...)
	}
	cm.active = now
}

// Messages renders the live history as alternating user and assistant turns,
// nil when there is none.
func (cm *ConversationManager) Messages() []chat.Message {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.exchanges) == 0 || cm.staleAt(cm.now()) {
		return nil
	}
	msgs := make([]chat.Message, 0, 2*len(cm.exchanges))
	for _, ex := range cm.exchanges {
		msgs = append(msgs,
			chat.Message{Role: chat.RoleUser, Content: ex.UserText},
			chat.Message{Role: chat.RoleAssistant, Content: ex.AssistantText},
		)
	}
	return msgs
}

// GetExchanges returns a copy of the live history.
func (cm *ConversationManager) GetExchanges() []Exchange {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.staleAt(cm.now()) {
		return nil
	}
	out := make([]Exchange, len(cm.exchanges))
	copy(out, cm.exchanges)
	return out
}

func (cm *ConversationManager) ExchangeCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.exchanges)
}

func (cm *ConversationManager) Clear() {
	cm.mu.Lock()
	cm.exchanges = nil
	cm.mu.Unlock()
}

// IsExpired reports whether the stored history has gone stale.
func (cm *ConversationManager) IsExpired() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.staleAt(cm.now())
}

// staleAt never holds for an empty history.
func (cm *ConversationManager) staleAt(t time.Time) bool {
	return len(cm.exchanges) > 0 && t.Sub(cm.active) > cm.config.InactivityTimeout
}

// Touch marks the conversation active, e.g. when a reply finishes playing.
func (cm *ConversationManager) Touch() {
	cm.mu.Lock()
	cm.active = cm.now()
	cm.mu.Unlock()
}

func (cm *ConversationManager) LastActivity() time.Time {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.active
}

func (cm *ConversationManager) Config() ConversationConfig {
	return cm.config
}
