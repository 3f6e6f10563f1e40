package avatar3d

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Blend rates per frame. Visemes snap faster than expressions so speech stays
// readable.
const (
	ExpressionRate float32 = 0.1
	VisemeRate     float32 = 0.2
	DecayRate      float32 = 0.15
)

// MorphTarget is where a channel should move this frame and how fast.
type MorphTarget struct {
	Value float32
	Rate  float32
}

// MorphMesh is a mesh with its own morph dictionary. Avatars ship a head mesh
// and usually a teeth mesh sharing the viseme channels.
type MorphMesh struct {
	Name     string
	Channels []string
}

// Blender owns the current intensity of every channel on one mesh. Each Step
// is a single lerp per channel, never an assignment, so values drift
// continuously and stay in [0,1].
type Blender struct {
	mesh    string
	index   map[string]int
	names   []string
	current []float32
	decay   float32
}

func NewBlender(mesh MorphMesh) *Blender {
	b := &Blender{
		mesh:  mesh.Name,
		index: make(map[string]int, len(mesh.Channels)),
		decay: DecayRate,
	}
	for _, name := range mesh.Channels {
		if _, dup := b.index[name]; dup {
			continue
		}
		b.index[name] = len(b.names)
		b.names = append(b.names, name)
	}
	b.current = make([]float32, len(b.names))
	return b
}

func (b *Blender) Mesh() string { return b.mesh }

// SetDecayRate overrides the rate untargeted channels relax at.
func (b *Blender) SetDecayRate(rate float32) {
	b.decay = mgl32.Clamp(rate, 0, 1)
}

// Step advances every channel one frame. Channels named in targets move toward
// the clamped target at its rate; the rest decay toward zero. Names the mesh
// does not have are ignored.
func (b *Blender) Step(targets map[string]MorphTarget) {
	for i, name := range b.names {
		t, ok := targets[name]
		if !ok {
			b.current[i] = lerp(b.current[i], 0, b.decay)
			continue
		}
		b.current[i] = lerp(b.current[i], mgl32.Clamp(t.Value, 0, 1), mgl32.Clamp(t.Rate, 0, 1))
	}
}

// Value returns the current intensity of a channel, false if the mesh lacks it.
func (b *Blender) Value(name string) (float32, bool) {
	i, ok := b.index[name]
	if !ok {
		return 0, false
	}
	return b.current[i], true
}

func (b *Blender) Has(name string) bool {
	_, ok := b.index[name]
	return ok
}

// Channels returns the mesh's channel names in dictionary order.
func (b *Blender) Channels() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Snapshot copies the current values.
func (b *Blender) Snapshot() map[string]float32 {
	out := make(map[string]float32, len(b.names))
	for i, name := range b.names {
		out[name] = b.current[i]
	}
	return out
}

// Active lists channels above eps, sorted by name.
func (b *Blender) Active(eps float32) []string {
	var out []string
	for i, name := range b.names {
		if b.current[i] > eps {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Blender) Reset() {
	for i := range b.current {
		b.current[i] = 0
	}
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

