package avatar3d

import (
	"time"

	"github.com/rs/zerolog"
)

// EngineConfig holds the tunable rates and timings.
type EngineConfig struct {
	ExpressionRate    float32
	VisemeRate        float32
	DecayRate         float32
	ExpressionScale   float32
	MaxCharDurationMs float64
	FadeIn            time.Duration
	FadeOut           time.Duration
	Blink             bool
	BlinkSeed         int64
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ExpressionRate:    ExpressionRate,
		VisemeRate:        VisemeRate,
		DecayRate:         DecayRate,
		ExpressionScale:   1.0,
		MaxCharDurationMs: DefaultMaxCharDurationMs,
		FadeIn:            DefaultFadeIn,
		FadeOut:           DefaultFadeOut,
	}
}

// SpeakEnd is delivered once per reply.
type SpeakEnd struct {
	Session PlaybackSession
	Reason  EndReason
	Err     error
}

// Frame is everything the renderer needs for one tick.
type Frame struct {
	Seq       uint64                        `json:"seq" msg:"seq"`
	Avatar    Pose                          `json:"avatar" msg:"avatar"`
	Morphs    map[string]map[string]float32 `json:"morphs" msg:"morphs"`
	Clips     []ClipWeight                  `json:"clips" msg:"clips"`
	State     string                        `json:"state" msg:"state"`
	Emotion   string                        `json:"emotion" msg:"emotion"`
	Viseme    string                        `json:"viseme,omitempty" msg:"viseme,omitempty"`
	Speaking  bool                          `json:"speaking" msg:"speaking"`
	ElapsedMs float64                       `json:"elapsed_ms" msg:"elapsed_ms"`
}

// Engine composes the playback clock, viseme lookup, morph blending and the
// body state machine. It is not safe for concurrent use; drive it from a
// Loop.
type Engine struct {
	cfg    EngineConfig
	logger zerolog.Logger

	avatar    *Avatar
	head      *Blender
	secondary []*Blender
	mixer     *Mixer
	sm        *StateMachine
	clock     *PlaybackClock
	eyes      *EyeController

	alignment Alignment
	emotion   Emotion
	speaking  bool
	cell      VisemeCell
	seq       uint64

	speakEnded []func(SpeakEnd)
}

func NewEngine(rig *Rig, clips ClipLibrary, avatar *Avatar, cfg EngineConfig, logger zerolog.Logger) *Engine {
	if rig == nil {
		rig = DefaultRig()
	}
	if avatar == nil {
		avatar = NewAvatar("companion")
	}
	logger = logger.With().Str("component", "engine").Logger()

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		avatar:  avatar,
		head:    NewBlender(rig.Head),
		mixer:   NewMixer(clips),
		clock:   NewPlaybackClock(logger),
		emotion: EmotionNeutral,
	}
	for _, m := range rig.Secondary {
		e.secondary = append(e.secondary, NewBlender(m))
	}
	e.sm = NewStateMachine(e.mixer, logger)
	e.applyConfig()
	e.clock.OnEnded(e.handleEnded)
	return e
}

// Configure swaps the tunables at runtime, e.g. after a config reload.
func (e *Engine) Configure(cfg EngineConfig) {
	e.cfg = cfg
	e.applyConfig()
}

func (e *Engine) applyConfig() {
	def := DefaultEngineConfig()
	if e.cfg.ExpressionRate <= 0 {
		e.cfg.ExpressionRate = def.ExpressionRate
	}
	if e.cfg.VisemeRate <= 0 {
		e.cfg.VisemeRate = def.VisemeRate
	}
	if e.cfg.DecayRate <= 0 {
		e.cfg.DecayRate = def.DecayRate
	}
	if e.cfg.ExpressionScale <= 0 {
		e.cfg.ExpressionScale = def.ExpressionScale
	}
	if e.cfg.MaxCharDurationMs <= 0 {
		e.cfg.MaxCharDurationMs = def.MaxCharDurationMs
	}
	if e.cfg.FadeIn <= 0 {
		e.cfg.FadeIn = def.FadeIn
	}
	if e.cfg.FadeOut <= 0 {
		e.cfg.FadeOut = def.FadeOut
	}
	e.head.SetDecayRate(e.cfg.DecayRate)
	for _, b := range e.secondary {
		b.SetDecayRate(e.cfg.DecayRate)
	}
	e.sm.SetFades(e.cfg.FadeIn, e.cfg.FadeOut)
	if e.cfg.Blink && e.eyes == nil {
		e.eyes = NewEyeController(e.cfg.BlinkSeed)
	} else if !e.cfg.Blink {
		e.eyes = nil
	}
}

// OnSpeakEnded registers a callback run exactly once per reply, whether the
// audio drained, was stopped or failed.
func (e *Engine) OnSpeakEnded(fn func(SpeakEnd)) {
	e.speakEnded = append(e.speakEnded, fn)
}

// OnStateChange forwards body state transitions.
func (e *Engine) OnStateChange(fn func(AnimationState)) {
	e.sm.OnChange(fn)
}

// BeginSpeaking starts a reply. Any reply still playing is stopped first, so
// only one audio source ever drives the mouth. An empty alignment is valid and
// just means no lip movement. A nil source is rejected before anything
// changes.
func (e *Engine) BeginSpeaking(src AudioSource, alignment Alignment, emotion Emotion) error {
	if src == nil {
		return ErrNoAudioSource
	}
	if !emotion.Valid() {
		emotion = EmotionNeutral
	}
	e.clock.Stop()

	e.alignment = alignment
	e.emotion = emotion
	e.cell.Clear()
	e.speaking = true
	e.sm.SetSpeaking(true, emotion)

	if _, err := e.clock.Begin(src); err != nil {
		return err
	}
	e.logger.Debug().
		Int("chars", len(alignment)).
		Str("emotion", emotion.String()).
		Msg("speaking")
	return nil
}

// StopSpeaking forces the current reply to end. No-op when silent.
func (e *Engine) StopSpeaking() {
	e.clock.Stop()
}

func (e *Engine) SetEmotion(emotion Emotion) {
	if !emotion.Valid() {
		emotion = EmotionNeutral
	}
	e.emotion = emotion
	e.sm.SetEmotion(emotion)
}

func (e *Engine) Emotion() Emotion { return e.emotion }

func (e *Engine) Speaking() bool { return e.speaking }

func (e *Engine) State() AnimationState { return e.sm.State() }

// Viseme returns the viseme the next Frame will target.
func (e *Engine) Viseme() (VisemeShape, bool) { return e.cell.Get() }

// Blender returns the blender for a mesh by name.
func (e *Engine) Blender(mesh string) (*Blender, bool) {
	if e.head.Mesh() == mesh {
		return e.head, true
	}
	for _, b := range e.secondary {
		if b.Mesh() == mesh {
			return b, true
		}
	}
	return nil, false
}

// Head returns the primary blender.
func (e *Engine) Head() *Blender { return e.head }

func (e *Engine) Mixer() *Mixer { return e.mixer }

// TrackViseme polls the audio and resolves the viseme at the current playback
// position. It is the only writer of the viseme cell.
func (e *Engine) TrackViseme() {
	e.clock.Poll()
	if !e.speaking {
		e.cell.Clear()
		return
	}
	t, ok := e.clock.ElapsedMs()
	if !ok {
		e.cell.Clear()
		return
	}
	if v, ok := e.alignment.VisemeAt(t, e.cfg.MaxCharDurationMs); ok {
		e.cell.Set(v)
		return
	}
	e.cell.Clear()
}

// Frame advances the face and body by dt and returns the new pose.
func (e *Engine) Frame(dt time.Duration) Frame {
	targets := make(map[string]MorphTarget)
	visemeOnly := make(map[string]MorphTarget, 1)

	if e.speaking {
		for ch, v := range ExpressionFor(e.emotion).Scale(e.cfg.ExpressionScale) {
			targets[string(ch)] = MorphTarget{Value: v, Rate: e.cfg.ExpressionRate}
		}
		// merged second so it wins on a name collision
		if v, ok := e.cell.Get(); ok {
			t := MorphTarget{Value: VisemeTargetIntensity(v), Rate: e.cfg.VisemeRate}
			targets[string(v.Channel())] = t
			visemeOnly[string(v.Channel())] = t
		}
	}
	if e.eyes != nil {
		e.eyes.Update(dt, targets)
	}

	e.head.Step(targets)
	for _, b := range e.secondary {
		b.Step(visemeOnly)
	}
	e.mixer.Update(dt)

	return e.snapshot()
}

func (e *Engine) snapshot() Frame {
	e.seq++
	morphs := make(map[string]map[string]float32, 1+len(e.secondary))
	morphs[e.head.Mesh()] = e.head.Snapshot()
	for _, b := range e.secondary {
		morphs[b.Mesh()] = b.Snapshot()
	}

	st := e.sm.State()
	f := Frame{
		Seq:      e.seq,
		Avatar:   e.avatar.Pose(),
		Morphs:   morphs,
		Clips:    e.mixer.Weights(),
		State:    st.State.String(),
		Emotion:  e.emotion.String(),
		Speaking: e.speaking,
	}
	if v, ok := e.cell.Get(); ok {
		f.Viseme = string(v)
	}
	if t, ok := e.clock.ElapsedMs(); ok {
		f.ElapsedMs = t
	}
	return f
}

func (e *Engine) handleEnded(s PlaybackSession, reason EndReason, err error) {
	e.speaking = false
	e.alignment = nil
	e.cell.Clear()
	e.sm.SetSpeaking(false, e.emotion)

	ev := SpeakEnd{Session: s, Reason: reason, Err: err}
	for _, fn := range e.speakEnded {
		fn(ev)
	}
}
