package avatar3d

import (
	"time"

	"github.com/rs/zerolog"
)

// State is the body animation state.
type State int

const (
	StateIdle State = iota
	StateTalkingNeutral
	StateTalkingEmotion
	StateDancing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTalkingNeutral:
		return "talking_neutral"
	case StateTalkingEmotion:
		return "talking_emotion"
	case StateDancing:
		return "dancing"
	default:
		return "unknown"
	}
}

// Cross-fade defaults, mirrored by the avatar.fade_* config keys.
const (
	DefaultFadeIn  = 500 * time.Millisecond
	DefaultFadeOut = 300 * time.Millisecond
)

// AnimationState is a State plus the emotion carried by TalkingEmotion.
type AnimationState struct {
	State   State   `json:"state" msg:"state"`
	Emotion Emotion `json:"emotion" msg:"emotion"`
}

// StateMachine decides which clip plays from the speaking flag, the current
// emotion and one-shot completion events. speak=false always wins.
type StateMachine struct {
	mixer  *Mixer
	logger zerolog.Logger

	state    State
	emotion  Emotion
	speaking bool
	clip     ClipID

	// cancels the one-shot finished subscription, nil when none is live
	cancelFinished func()

	fadeIn  time.Duration
	fadeOut time.Duration

	onChange func(AnimationState)
}

func NewStateMachine(mixer *Mixer, logger zerolog.Logger) *StateMachine {
	sm := &StateMachine{
		mixer:   mixer,
		logger:  logger.With().Str("component", "animation").Logger(),
		state:   StateIdle,
		emotion: EmotionNeutral,
		fadeIn:  DefaultFadeIn,
		fadeOut: DefaultFadeOut,
	}
	sm.clip = ClipIdle
	mixer.Play(ClipIdle, DefaultFadeIn)
	return sm
}

// SetFades changes the cross-fade durations. Values are clamped to 0.3–0.5s so
// transitions never pop.
func (sm *StateMachine) SetFades(in, out time.Duration) {
	sm.fadeIn = clampFade(in)
	sm.fadeOut = clampFade(out)
}

func clampFade(d time.Duration) time.Duration {
	if d < 300*time.Millisecond {
		return 300 * time.Millisecond
	}
	if d > 500*time.Millisecond {
		return 500 * time.Millisecond
	}
	return d
}

// OnChange registers a callback run after every transition.
func (sm *StateMachine) OnChange(fn func(AnimationState)) {
	sm.onChange = fn
}

func (sm *StateMachine) State() AnimationState {
	return AnimationState{State: sm.state, Emotion: sm.emotion}
}

func (sm *StateMachine) Clip() ClipID {
	return sm.clip
}

// SetSpeaking flips the speak flag. Becoming true from Idle enters the talking
// variant for e; becoming false returns to Idle at once, abandoning any
// unfinished one-shot.
func (sm *StateMachine) SetSpeaking(speak bool, e Emotion) {
	if !speak {
		sm.speaking = false
		if sm.state != StateIdle {
			sm.transition(StateIdle, ClipIdle, sm.fadeOut)
		}
		return
	}
	sm.speaking = true
	if sm.state == StateIdle || e != sm.emotion {
		sm.emotion = e
		sm.enterTalking()
		return
	}
	sm.emotion = e
}

// SetEmotion records the emotion. While talking, a different emotion restarts
// the talking variant so a new gesture can play; while idle it only takes
// effect on the next SetSpeaking(true).
func (sm *StateMachine) SetEmotion(e Emotion) {
	if e == sm.emotion {
		return
	}
	sm.emotion = e
	if sm.speaking && sm.state != StateIdle {
		sm.enterTalking()
	}
}

func (sm *StateMachine) enterTalking() {
	if sm.emotion == EmotionDancing {
		sm.transition(StateDancing, ClipDance, sm.fadeIn)
		return
	}
	clip, ok := OneShotClip(sm.emotion)
	if !ok {
		sm.transition(StateTalkingNeutral, ClipTalking, sm.fadeIn)
		return
	}
	sm.transition(StateTalkingEmotion, clip, sm.fadeIn)
	sm.cancelFinished = sm.mixer.OnFinished(func(id ClipID) {
		sm.clipFinished(id)
	})
}

func (sm *StateMachine) clipFinished(id ClipID) {
	if sm.state != StateTalkingEmotion || id != sm.clip {
		return
	}
	sm.transition(StateTalkingNeutral, ClipTalking, sm.fadeIn)
}

func (sm *StateMachine) transition(next State, clip ClipID, fade time.Duration) {
	if next == sm.state && clip == sm.clip {
		return
	}
	if sm.cancelFinished != nil {
		sm.cancelFinished()
		sm.cancelFinished = nil
	}
	prev := sm.state
	sm.mixer.CrossFade(sm.clip, clip, fade)
	sm.state = next
	sm.clip = clip

	sm.logger.Debug().
		Str("from", prev.String()).
		Str("to", next.String()).
		Str("emotion", sm.emotion.String()).
		Str("clip", string(clip)).
		Dur("fade", fade).
		Msg("animation transition")

	if sm.onChange != nil {
		sm.onChange(sm.State())
	}
}
