package avatar3d

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMixerOneShotFinishesOnce(t *testing.T) {
	m := NewMixer(ClipLibrary{"wave": {Duration: time.Second}})
	var finished []ClipID
	cancel := m.OnFinished(func(id ClipID) { finished = append(finished, id) })
	defer cancel()

	m.Play("wave", 0)
	advance(m, 3*time.Second, 100*time.Millisecond)

	assert.Equal(t, []ClipID{"wave"}, finished)
	w := m.Weights()
	require.Len(t, w, 1)
	assert.InDelta(t, 1.0, w[0].TimeSec, 1e-6, "held on last frame")

	m.Play("wave", 0)
	advance(m, time.Second, 100*time.Millisecond)
	assert.Len(t, finished, 2, "replay reports again")
}

func TestMixerLoopWraps(t *testing.T) {
	m := NewMixer(ClipLibrary{"spin": {Duration: time.Second, Loop: true}})
	fired := false
	m.OnFinished(func(ClipID) { fired = true })

	m.Play("spin", 0)
	m.Update(1500 * time.Millisecond)

	assert.False(t, fired)
	assert.InDelta(t, 0.5, m.Weights()[0].TimeSec, 1e-6)
}

func TestMixerCancelledSubscriberNotCalled(t *testing.T) {
	m := NewMixer(ClipLibrary{"wave": {Duration: 100 * time.Millisecond}})
	calls := 0
	cancel := m.OnFinished(func(ClipID) { calls++ })
	cancel()
	cancel()

	m.Play("wave", 0)
	m.Update(200 * time.Millisecond)
	assert.Zero(t, calls)
	assert.Zero(t, m.Subscribers())
}

func TestMixerUnknownClipIgnored(t *testing.T) {
	m := NewMixer(ClipLibrary{})
	m.Play("missing", time.Second)
	m.Update(time.Second)
	assert.Empty(t, m.Weights())
}

func TestMixerFadeOutStops(t *testing.T) {
	m := NewMixer(DefaultClipLibrary())
	m.Play(ClipIdle, 0)
	m.FadeOut(ClipIdle, 300*time.Millisecond)
	m.Update(150 * time.Millisecond)
	assert.True(t, m.Playing(ClipIdle))
	m.Update(150 * time.Millisecond)
	assert.False(t, m.Playing(ClipIdle))
	assert.Zero(t, m.Weight(ClipIdle))
}
