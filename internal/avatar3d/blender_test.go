package avatar3d

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMesh() MorphMesh {
	return MorphMesh{Name: "head", Channels: []string{"mouthSmileLeft", "viseme_aa", "browInnerUp"}}
}

func TestBlenderStepsBetweenValueAndTarget(t *testing.T) {
	b := NewBlender(testMesh())
	rng := rand.New(rand.NewSource(7))
	names := b.Channels()

	for frame := 0; frame < 500; frame++ {
		targets := make(map[string]MorphTarget)
		for _, name := range names {
			if rng.Intn(3) == 0 {
				continue
			}
			targets[name] = MorphTarget{Value: rng.Float32(), Rate: []float32{ExpressionRate, VisemeRate}[rng.Intn(2)]}
		}
		before := b.Snapshot()
		b.Step(targets)

		for _, name := range names {
			prev := before[name]
			target := float32(0)
			if tg, ok := targets[name]; ok {
				target = tg.Value
			}
			got, _ := b.Value(name)
			lo, hi := prev, target
			if lo > hi {
				lo, hi = hi, lo
			}
			require.GreaterOrEqual(t, got, lo-1e-6, "frame %d %s", frame, name)
			require.LessOrEqual(t, got, hi+1e-6, "frame %d %s", frame, name)
			require.GreaterOrEqual(t, got, float32(0))
			require.LessOrEqual(t, got, float32(1))
		}
	}
}

func TestBlenderRates(t *testing.T) {
	b := NewBlender(testMesh())
	b.Step(map[string]MorphTarget{
		"mouthSmileLeft": {Value: 1, Rate: ExpressionRate},
		"viseme_aa":      {Value: 1, Rate: VisemeRate},
	})
	smile, _ := b.Value("mouthSmileLeft")
	aa, _ := b.Value("viseme_aa")
	assert.InDelta(t, 0.1, smile, 1e-6)
	assert.InDelta(t, 0.2, aa, 1e-6)
}

func TestBlenderDecaysUntargetedChannels(t *testing.T) {
	b := NewBlender(testMesh())
	for i := 0; i < 100; i++ {
		b.Step(map[string]MorphTarget{"browInnerUp": {Value: 1, Rate: 0.5}})
	}
	v, _ := b.Value("browInnerUp")
	require.Greater(t, v, float32(0.99))

	for i := 0; i < 30; i++ {
		b.Step(nil)
	}
	v, _ = b.Value("browInnerUp")
	assert.Less(t, v, float32(0.01))
}

func TestBlenderClampsTargets(t *testing.T) {
	b := NewBlender(testMesh())
	for i := 0; i < 200; i++ {
		b.Step(map[string]MorphTarget{
			"mouthSmileLeft": {Value: 3, Rate: 0.5},
			"browInnerUp":    {Value: -2, Rate: 0.5},
		})
	}
	smile, _ := b.Value("mouthSmileLeft")
	brow, _ := b.Value("browInnerUp")
	assert.LessOrEqual(t, smile, float32(1))
	assert.InDelta(t, 1, smile, 1e-3)
	assert.Equal(t, float32(0), brow)
}

func TestBlenderSkipsUnknownChannels(t *testing.T) {
	b := NewBlender(testMesh())
	assert.NotPanics(t, func() {
		b.Step(map[string]MorphTarget{"tailWag": {Value: 1, Rate: 1}})
	})
	_, ok := b.Value("tailWag")
	assert.False(t, ok)
	assert.Len(t, b.Snapshot(), 3)
}

func TestBlenderDedupesChannels(t *testing.T) {
	b := NewBlender(MorphMesh{Name: "x", Channels: []string{"a", "b", "a"}})
	assert.Equal(t, []string{"a", "b"}, b.Channels())
}

func TestBlenderResetAndActive(t *testing.T) {
	b := NewBlender(testMesh())
	b.Step(map[string]MorphTarget{"viseme_aa": {Value: 1, Rate: 1}})
	assert.Equal(t, []string{"viseme_aa"}, b.Active(0.01))
	b.Reset()
	assert.Empty(t, b.Active(0.01))
}
