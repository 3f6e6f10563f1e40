package avatar3d

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateMachine() (*StateMachine, *Mixer) {
	m := NewMixer(DefaultClipLibrary())
	return NewStateMachine(m, zerolog.Nop()), m
}

func advance(m *Mixer, total, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		m.Update(step)
	}
}

func TestOneShotClipMapping(t *testing.T) {
	for _, e := range []Emotion{EmotionHappy, EmotionSad, EmotionConfused, EmotionAngry, EmotionLaughing} {
		clip, ok := OneShotClip(e)
		assert.True(t, ok, e)
		assert.Equal(t, ClipID(e), clip)
	}
	for _, e := range []Emotion{EmotionNeutral, EmotionFlirty, EmotionLoving, EmotionDancing, "legacy"} {
		_, ok := OneShotClip(e)
		assert.False(t, ok, e)
	}
}

func TestStateMachineStartsIdle(t *testing.T) {
	sm, m := newTestStateMachine()
	assert.Equal(t, StateIdle, sm.State().State)
	assert.True(t, m.Playing(ClipIdle))
}

func TestStateMachineTalkingVariants(t *testing.T) {
	cases := []struct {
		emotion Emotion
		state   State
		clip    ClipID
	}{
		{EmotionNeutral, StateTalkingNeutral, ClipTalking},
		{EmotionFlirty, StateTalkingNeutral, ClipTalking},
		{EmotionLoving, StateTalkingNeutral, ClipTalking},
		{EmotionHappy, StateTalkingEmotion, ClipHappy},
		{EmotionAngry, StateTalkingEmotion, ClipAngry},
		{EmotionDancing, StateDancing, ClipDance},
	}
	for _, tc := range cases {
		t.Run(string(tc.emotion), func(t *testing.T) {
			sm, m := newTestStateMachine()
			sm.SetSpeaking(true, tc.emotion)
			assert.Equal(t, tc.state, sm.State().State)
			assert.Equal(t, tc.emotion, sm.State().Emotion)
			assert.Equal(t, tc.clip, sm.Clip())
			assert.True(t, m.Playing(tc.clip))
		})
	}
}

func TestStateMachineOneShotSettlesIntoTalking(t *testing.T) {
	sm, m := newTestStateMachine()
	sm.SetSpeaking(true, EmotionAngry)
	require.Equal(t, StateTalkingEmotion, sm.State().State)
	require.Equal(t, 1, m.Subscribers())

	angry := DefaultClipLibrary()[ClipAngry].Duration
	advance(m, angry-100*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, StateTalkingEmotion, sm.State().State, "one-shot still running")

	m.Update(100 * time.Millisecond)
	assert.Equal(t, StateTalkingNeutral, sm.State().State)
	assert.Equal(t, ClipTalking, sm.Clip())
	assert.Equal(t, 0, m.Subscribers(), "subscription cancelled after completion")
}

func TestStateMachineStopBeatsOneShot(t *testing.T) {
	sm, m := newTestStateMachine()
	sm.SetSpeaking(true, EmotionHappy)
	advance(m, time.Second, 100*time.Millisecond)

	sm.SetSpeaking(false, EmotionHappy)
	assert.Equal(t, StateIdle, sm.State().State)
	assert.Equal(t, ClipIdle, sm.Clip())
	assert.Equal(t, 0, m.Subscribers())

	// the abandoned clip finishing later must not pull the machine out of idle
	advance(m, 5*time.Second, 100*time.Millisecond)
	assert.Equal(t, StateIdle, sm.State().State)
}

func TestStateMachineStopFromEveryTalkingState(t *testing.T) {
	for _, e := range []Emotion{EmotionNeutral, EmotionSad, EmotionDancing} {
		sm, _ := newTestStateMachine()
		sm.SetSpeaking(true, e)
		sm.SetSpeaking(false, e)
		assert.Equal(t, StateIdle, sm.State().State, e)
	}
}

func TestStateMachineEmotionChangeWhileTalking(t *testing.T) {
	sm, m := newTestStateMachine()
	sm.SetSpeaking(true, EmotionNeutral)
	sm.SetEmotion(EmotionSad)
	assert.Equal(t, StateTalkingEmotion, sm.State().State)
	assert.Equal(t, ClipSad, sm.Clip())

	sm.SetEmotion(EmotionDancing)
	assert.Equal(t, StateDancing, sm.State().State)
	assert.Equal(t, 0, m.Subscribers())
}

func TestStateMachineEmotionChangeWhileIdle(t *testing.T) {
	sm, _ := newTestStateMachine()
	sm.SetEmotion(EmotionHappy)
	assert.Equal(t, StateIdle, sm.State().State)
	assert.Equal(t, EmotionHappy, sm.State().Emotion)
}

func TestStateMachineCrossFades(t *testing.T) {
	sm, m := newTestStateMachine()
	advance(m, time.Second, 100*time.Millisecond)
	require.InDelta(t, 1, m.Weight(ClipIdle), 1e-6)

	sm.SetSpeaking(true, EmotionNeutral)
	m.Update(250 * time.Millisecond)
	idle, talk := m.Weight(ClipIdle), m.Weight(ClipTalking)
	assert.Greater(t, idle, float32(0), "no instant cut")
	assert.Greater(t, talk, float32(0))
	assert.Less(t, talk, float32(1))

	m.Update(250 * time.Millisecond)
	assert.InDelta(t, 1, m.Weight(ClipTalking), 1e-6)
	assert.False(t, m.Playing(ClipIdle))
}

func TestStateMachineFadesClamped(t *testing.T) {
	sm, _ := newTestStateMachine()
	sm.SetFades(10*time.Millisecond, 2*time.Second)
	assert.Equal(t, 300*time.Millisecond, sm.fadeIn)
	assert.Equal(t, 500*time.Millisecond, sm.fadeOut)
}

func TestStateMachineOnChange(t *testing.T) {
	sm, _ := newTestStateMachine()
	var seen []State
	sm.OnChange(func(s AnimationState) { seen = append(seen, s.State) })

	sm.SetSpeaking(true, EmotionLaughing)
	sm.SetSpeaking(false, EmotionLaughing)
	assert.Equal(t, []State{StateTalkingEmotion, StateIdle}, seen)
}
