package avatar3d

import (
	"sort"
	"time"
)

// ClipWeight is one clip's contribution to the pose this frame.
type ClipWeight struct {
	Clip    ClipID  `json:"clip" msg:"clip"`
	Weight  float32 `json:"weight" msg:"weight"`
	TimeSec float32 `json:"time" msg:"time"`
	Loop    bool    `json:"loop" msg:"loop"`
}

type clipAction struct {
	id   ClipID
	info ClipInfo

	elapsed  time.Duration
	weight   float32
	finished bool
	playing  bool

	fadeFrom    float32
	fadeTo      float32
	fadeElapsed time.Duration
	fadeDur     time.Duration
	seq         int
}

// Mixer plays skeletal clips with weighted cross-fades. Looping clips wrap;
// one-shot clips hold their last frame and report completion exactly once
// per play through OnFinished.
type Mixer struct {
	lib     ClipLibrary
	actions map[ClipID]*clipAction
	curve   InterpolationMode
	seq     int

	subs    map[int]func(ClipID)
	nextSub int
}

func NewMixer(lib ClipLibrary) *Mixer {
	if lib == nil {
		lib = DefaultClipLibrary()
	}
	return &Mixer{
		lib:     lib,
		actions: make(map[ClipID]*clipAction),
		curve:   InterpEaseInOut,
		subs:    make(map[int]func(ClipID)),
	}
}

// SetCurve picks the easing applied to fade weights.
func (m *Mixer) SetCurve(mode InterpolationMode) {
	m.curve = mode
}

// Play restarts a clip from its first frame and fades it in over fade.
// Unknown clips are ignored.
func (m *Mixer) Play(id ClipID, fade time.Duration) {
	info, ok := m.lib.Info(id)
	if !ok {
		return
	}
	a, ok := m.actions[id]
	if !ok {
		a = &clipAction{id: id}
		m.actions[id] = a
	}
	m.seq++
	a.info = info
	a.seq = m.seq
	a.elapsed = 0
	a.finished = false
	a.playing = true
	m.startFade(a, 1, fade)
}

// FadeOut fades a playing clip to zero weight, after which it stops.
func (m *Mixer) FadeOut(id ClipID, fade time.Duration) {
	a, ok := m.actions[id]
	if !ok || !a.playing {
		return
	}
	m.startFade(a, 0, fade)
}

// CrossFade fades from out and to in over the same duration. from may be
// empty when nothing is playing.
func (m *Mixer) CrossFade(from, to ClipID, fade time.Duration) {
	if from != "" && from != to {
		m.FadeOut(from, fade)
	}
	m.Play(to, fade)
}

func (m *Mixer) startFade(a *clipAction, to float32, d time.Duration) {
	a.fadeFrom = a.weight
	a.fadeTo = to
	a.fadeElapsed = 0
	a.fadeDur = d
	if d <= 0 {
		a.weight = to
		a.fadeDur = 0
		if to == 0 {
			a.playing = false
		}
	}
}

// Update advances clip time and fades, then delivers finished events.
func (m *Mixer) Update(dt time.Duration) {
	var done []ClipID
	for _, a := range m.sorted() {
		if !a.playing {
			continue
		}
		if a.fadeDur > 0 {
			a.fadeElapsed += dt
			p := float32(a.fadeElapsed) / float32(a.fadeDur)
			if p >= 1 {
				a.weight = a.fadeTo
				a.fadeDur = 0
			} else {
				a.weight = a.fadeFrom + (a.fadeTo-a.fadeFrom)*m.curve.apply(p)
			}
			if a.fadeDur == 0 && a.fadeTo == 0 {
				a.playing = false
				continue
			}
		}

		a.elapsed += dt
		if a.info.Loop {
			if a.info.Duration > 0 {
				a.elapsed %= a.info.Duration
			}
			continue
		}
		if a.elapsed >= a.info.Duration {
			a.elapsed = a.info.Duration
			if !a.finished {
				a.finished = true
				done = append(done, a.id)
			}
		}
	}
	for _, id := range done {
		m.emitFinished(id)
	}
}

// OnFinished subscribes to one-shot completion. The returned func cancels the
// subscription and is safe to call more than once.
func (m *Mixer) OnFinished(fn func(ClipID)) (cancel func()) {
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() { delete(m.subs, id) }
}

// Subscribers reports how many finished listeners are registered.
func (m *Mixer) Subscribers() int {
	return len(m.subs)
}

func (m *Mixer) emitFinished(clip ClipID) {
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		// a listener may cancel others while we dispatch
		if fn, ok := m.subs[id]; ok {
			fn(clip)
		}
	}
}

// Weights returns every playing clip, oldest play first.
func (m *Mixer) Weights() []ClipWeight {
	var out []ClipWeight
	for _, a := range m.sorted() {
		if !a.playing {
			continue
		}
		out = append(out, ClipWeight{
			Clip:    a.id,
			Weight:  a.weight,
			TimeSec: float32(a.elapsed.Seconds()),
			Loop:    a.info.Loop,
		})
	}
	return out
}

// Weight returns a clip's current weight, zero when it is not playing.
func (m *Mixer) Weight(id ClipID) float32 {
	a, ok := m.actions[id]
	if !ok || !a.playing {
		return 0
	}
	return a.weight
}

func (m *Mixer) Playing(id ClipID) bool {
	a, ok := m.actions[id]
	return ok && a.playing
}

func (m *Mixer) sorted() []*clipAction {
	out := make([]*clipAction, 0, len(m.actions))
	for _, a := range m.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
