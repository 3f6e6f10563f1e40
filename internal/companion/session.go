// Package companion runs one conversation: it asks the model for a reply,
// voices it, and drives the avatar while it is spoken.
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
	"github.com/normanking/cortexcompanion/internal/bus"
	"github.com/normanking/cortexcompanion/internal/chat"
	"github.com/normanking/cortexcompanion/internal/config"
	"github.com/normanking/cortexcompanion/internal/credits"
	"github.com/normanking/cortexcompanion/internal/tts"
	"github.com/normanking/cortexcompanion/internal/voice"
)

// DefaultEmotionResetDelay is how long the last emotion lingers after a
// reply finishes.
const DefaultEmotionResetDelay = 5 * time.Second

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrBusy             = errors.New("a reply is already in progress")
	ErrNoCredits        = errors.New("no credits left")
	ErrUnknownCharacter = errors.New("unknown character")
	ErrInterrupted      = errors.New("reply interrupted")
)

// SourceFactory turns synthesized audio into a playable source.
type SourceFactory func(data []byte, format string) (avatar3d.AudioSource, error)

// Ledger is the part of the credit ledger a session needs.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Deduct(ctx context.Context, userID string) (int, error)
}

// Config configures a Session
type Config struct {
	UserID            string
	CharacterID       string
	EmotionResetDelay time.Duration
}

// Deps are the collaborators a Session drives. Ledger and Bus are optional.
type Deps struct {
	Loop      *avatar3d.Loop
	Chat      chat.Provider
	TTS       tts.Provider
	NewSource SourceFactory
	Ledger    Ledger
	History   *voice.ConversationManager
	Bus       *bus.EventBus
}

// Reply is what Send returns once the reply has started playing.
type Reply struct {
	Text    string           `json:"text"`
	Emotion avatar3d.Emotion `json:"emotion"`
	Credits int              `json:"credits"` // -1 when no ledger is attached
}

// Session serializes sends: one reply is fetched or spoken at a time.
type Session struct {
	logger zerolog.Logger
	deps   Deps
	userID string
	delay  time.Duration

	mu         sync.Mutex
	character  config.Character
	loading    bool
	speaking   bool
	resetTimer *time.Timer
	resetGen   uint64
	sendGen    uint64 // bumped by Stop and SwitchCharacter to abandon a pending send
}

// NewSession wires a session to the engine. Call it before the loop runs so
// the speak-end hook is in place for the first reply.
func NewSession(cfg Config, deps Deps, logger zerolog.Logger) (*Session, error) {
	if deps.Loop == nil || deps.Chat == nil || deps.TTS == nil || deps.NewSource == nil {
		return nil, errors.New("session: loop, chat, tts and audio are required")
	}
	if cfg.CharacterID == "" {
		cfg.CharacterID = config.DefaultCharacterID
	}
	ch := config.GetCharacter(cfg.CharacterID)
	if ch == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharacter, cfg.CharacterID)
	}
	if cfg.EmotionResetDelay <= 0 {
		cfg.EmotionResetDelay = DefaultEmotionResetDelay
	}
	if deps.History == nil {
		deps.History = voice.NewConversationManager(voice.DefaultConversationConfig())
	}

	s := &Session{
		logger:    logger.With().Str("component", "session").Str("user", cfg.UserID).Logger(),
		deps:      deps,
		userID:    cfg.UserID,
		delay:     cfg.EmotionResetDelay,
		character: *ch,
	}
	deps.Loop.Engine().OnSpeakEnded(s.handleSpeakEnd)
	deps.Loop.Engine().OnStateChange(func(st avatar3d.AnimationState) {
		s.publish(bus.EventTypeAvatarStateChanged, map[string]any{
			"state":   st.State.String(),
			"emotion": st.Emotion.String(),
		})
	})
	return s, nil
}

// Send asks for a reply to text and starts speaking it. It returns once
// playback has begun.
func (s *Session) Send(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.loading || s.speaking {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.loading = true
	character := s.character
	gen := s.sendGen
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	if err := s.checkCredits(ctx); err != nil {
		return nil, err
	}
	s.cancelReset()
	s.publish(bus.EventTypeMessageSent, map[string]any{"text": text, "character": character.ID})

	resp, err := s.deps.Chat.Chat(ctx, &chat.Request{
		System:  character.SystemPrompt,
		History: s.deps.History.Messages(),
		Text:    text,
	})
	if err != nil {
		s.publish(bus.EventTypeChatFailed, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("chat: %w", err)
	}
	if !s.current(gen) {
		return nil, ErrInterrupted
	}
	s.logger.Info().Str("emotion", resp.Emotion.String()).Str("text", resp.Text).Msg("Reply received")
	s.publish(bus.EventTypeReplyReceived, map[string]any{"text": resp.Text, "emotion": resp.Emotion.String()})

	engine := s.deps.Loop.Engine()
	emotion := resp.Emotion
	s.deps.Loop.Do(func() { engine.SetEmotion(emotion) })
	s.publish(bus.EventTypeEmotionChanged, map[string]any{"emotion": emotion.String()})

	s.deps.History.AddExchange(text, resp.Text, emotion)

	s.publish(bus.EventTypeTTSStarted, map[string]any{"provider": s.deps.TTS.Name()})
	speech, err := s.deps.TTS.Synthesize(ctx, &tts.SynthesizeRequest{
		Text:    resp.Text,
		VoiceID: s.voiceFor(character),
		Emotion: emotion,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	s.publish(bus.EventTypeTTSCompleted, map[string]any{
		"provider": speech.Provider,
		"bytes":    len(speech.Audio),
		"chars":    len(speech.Alignment),
	})

	src, err := s.deps.NewSource(speech.Audio, speech.Format)
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	if src == nil {
		return nil, fmt.Errorf("audio: %w", avatar3d.ErrNoAudioSource)
	}

	s.mu.Lock()
	if s.sendGen != gen {
		s.mu.Unlock()
		_ = src.Close()
		return nil, ErrInterrupted
	}
	s.speaking = true
	s.mu.Unlock()

	// The speak-end hook runs on the loop goroutine and takes s.mu, so the
	// lock must not be held across BeginSpeaking. started is guarded by s.mu.
	started := false
	err = s.deps.Loop.Call(ctx, func() error {
		s.mu.Lock()
		live := s.sendGen == gen
		started = live
		s.mu.Unlock()
		if !live {
			_ = src.Close()
			return ErrInterrupted
		}
		return engine.BeginSpeaking(src, speech.Alignment, emotion)
	})
	if err != nil {
		s.mu.Lock()
		claimed := started
		if !claimed {
			// the queued start did not play; make sure it never will
			s.sendGen++
			s.speaking = false
		}
		s.mu.Unlock()
		if claimed && ctx.Err() != nil {
			s.deps.Loop.Do(engine.StopSpeaking)
		}
		return nil, fmt.Errorf("begin speaking: %w", err)
	}
	s.publish(bus.EventTypeSpeakingStarted, map[string]any{"chars": len(speech.Alignment)})

	reply := &Reply{Text: resp.Text, Emotion: emotion, Credits: -1}
	if s.deps.Ledger != nil {
		bal, err := s.deps.Ledger.Deduct(ctx, s.userID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to deduct credit")
		} else {
			reply.Credits = bal
			s.publishBalance(bal)
		}
	}
	return reply, nil
}

func (s *Session) checkCredits(ctx context.Context) error {
	if s.deps.Ledger == nil {
		return nil
	}
	bal, err := s.deps.Ledger.Balance(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("credits: %w", err)
	}
	if bal <= 0 {
		s.publish(bus.EventTypeCreditsEmpty, map[string]any{"user": s.userID})
		return ErrNoCredits
	}
	return nil
}

func (s *Session) publishBalance(bal int) {
	s.publish(bus.EventTypeCreditsChanged, map[string]any{"user": s.userID, "balance": bal})
	if bal == 0 {
		s.publish(bus.EventTypeCreditsEmpty, map[string]any{"user": s.userID})
	}
}

func (s *Session) voiceFor(c config.Character) string {
	if s.deps.TTS.Name() == "elevenlabs" {
		return c.ElevenLabsVoiceID
	}
	return c.VoiceID
}

// handleSpeakEnd runs on the loop goroutine once per reply.
func (s *Session) handleSpeakEnd(ev avatar3d.SpeakEnd) {
	s.mu.Lock()
	s.speaking = false
	s.resetGen++
	gen := s.resetGen
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetTimer = time.AfterFunc(s.delay, func() { s.resetEmotion(gen) })
	s.mu.Unlock()

	s.deps.History.Touch()

	data := map[string]any{"reason": ev.Reason.String(), "session": ev.Session.ID.String()}
	if ev.Err != nil {
		data["error"] = ev.Err.Error()
		s.logger.Warn().Err(ev.Err).Msg("Reply playback failed")
	}
	s.publish(bus.EventTypeSpeakingStopped, data)
}

func (s *Session) resetEmotion(gen uint64) {
	s.mu.Lock()
	stale := gen != s.resetGen
	if !stale {
		s.resetTimer = nil
	}
	s.mu.Unlock()
	if stale {
		return
	}

	engine := s.deps.Loop.Engine()
	s.deps.Loop.Do(func() { engine.SetEmotion(avatar3d.EmotionNeutral) })
	s.publish(bus.EventTypeEmotionChanged, map[string]any{"emotion": avatar3d.EmotionNeutral.String()})
}

// cancelReset drops a pending emotion reset.
func (s *Session) cancelReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetGen++
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

// current reports whether the send that captured gen is still wanted.
func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendGen == gen
}

// interrupt abandons a send that has not started playing yet.
func (s *Session) interrupt() {
	s.mu.Lock()
	s.sendGen++
	s.mu.Unlock()
}

// SwitchCharacter stops any reply, forgets the conversation and selects a
// new persona.
func (s *Session) SwitchCharacter(id string) error {
	ch := config.GetCharacter(id)
	if ch == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCharacter, id)
	}
	s.interrupt()
	engine := s.deps.Loop.Engine()
	s.deps.Loop.Do(engine.StopSpeaking)
	s.deps.History.Clear()

	s.mu.Lock()
	s.character = *ch
	s.mu.Unlock()

	s.logger.Info().Str("character", ch.ID).Msg("Character switched")
	s.publish(bus.EventTypeHistoryCleared, nil)
	s.publish(bus.EventTypeCharacterSwitch, map[string]any{"character": ch.ID, "avatar": ch.AvatarPath})
	return nil
}

// Stop ends any reply, abandons one still loading and cancels a pending
// emotion reset.
func (s *Session) Stop() {
	s.interrupt()
	s.cancelReset()
	engine := s.deps.Loop.Engine()
	s.deps.Loop.Do(engine.StopSpeaking)
}

func (s *Session) Character() config.Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.character
}

// Busy reports whether a reply is being fetched or spoken.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading || s.speaking
}

func (s *Session) History() []voice.Exchange {
	return s.deps.History.GetExchanges()
}

func (s *Session) publish(t bus.EventType, data map[string]any) {
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(bus.NewEvent(t, data))
	}
}

var _ Ledger = (*credits.Ledger)(nil)
