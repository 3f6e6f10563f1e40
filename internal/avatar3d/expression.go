package avatar3d

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Expression maps morph channels to target intensities in [0,1].
type Expression map[Channel]float32

// ExpressionPreset is the face an emotion pulls toward while the avatar talks.
type ExpressionPreset struct {
	Name    Emotion
	Weights Expression
}

var (
	// Every talking face keeps a gentle smile unless the mood overrides it.
	PresetNeutral = ExpressionPreset{
		Name: EmotionNeutral,
		Weights: Expression{
			MouthSmileLeft:  0.2,
			MouthSmileRight: 0.2,
		},
	}

	PresetHappy = ExpressionPreset{
		Name: EmotionHappy,
		Weights: Expression{
			MouthSmileLeft:   0.5,
			MouthSmileRight:  0.5,
			CheekSquintLeft:  0.3,
			CheekSquintRight: 0.3,
			EyeSquintLeft:    0.15,
			EyeSquintRight:   0.15,
		},
	}

	PresetSad = ExpressionPreset{
		Name: EmotionSad,
		Weights: Expression{
			MouthFrownLeft:  0.7,
			MouthFrownRight: 0.7,
			BrowInnerUp:     0.6,
			BrowDownLeft:    0.1,
			BrowDownRight:   0.1,
			EyeSquintLeft:   0.1,
			EyeSquintRight:  0.1,
		},
	}

	PresetConfused = ExpressionPreset{
		Name: EmotionConfused,
		Weights: Expression{
			BrowInnerUp:     0.4,
			BrowOuterUpLeft: 0.35,
			BrowDownRight:   0.25,
			MouthPressLeft:  0.2,
			MouthLeft:       0.15,
			EyeSquintRight:  0.15,
		},
	}

	PresetAngry = ExpressionPreset{
		Name: EmotionAngry,
		Weights: Expression{
			BrowDownLeft:    0.7,
			BrowDownRight:   0.7,
			EyeSquintLeft:   0.3,
			EyeSquintRight:  0.3,
			NoseSneerLeft:   0.4,
			NoseSneerRight:  0.4,
			MouthPressLeft:  0.3,
			MouthPressRight: 0.3,
		},
	}

	PresetLaughing = ExpressionPreset{
		Name: EmotionLaughing,
		Weights: Expression{
			MouthSmileLeft:   0.8,
			MouthSmileRight:  0.8,
			CheekSquintLeft:  0.5,
			CheekSquintRight: 0.5,
			EyeSquintLeft:    0.4,
			EyeSquintRight:   0.4,
			BrowOuterUpLeft:  0.2,
			BrowOuterUpRight: 0.2,
		},
	}

	PresetDancing = ExpressionPreset{
		Name: EmotionDancing,
		Weights: Expression{
			MouthSmileLeft:   0.6,
			MouthSmileRight:  0.6,
			CheekSquintLeft:  0.2,
			CheekSquintRight: 0.2,
			BrowOuterUpLeft:  0.25,
			BrowOuterUpRight: 0.25,
		},
	}

	PresetFlirty = ExpressionPreset{
		Name: EmotionFlirty,
		Weights: Expression{
			MouthSmileLeft:   0.45,
			MouthSmileRight:  0.25,
			EyeSquintLeft:    0.3,
			EyeSquintRight:   0.1,
			BrowOuterUpRight: 0.3,
			MouthDimpleLeft:  0.2,
		},
	}

	PresetLoving = ExpressionPreset{
		Name: EmotionLoving,
		Weights: Expression{
			MouthSmileLeft:   0.4,
			MouthSmileRight:  0.4,
			BrowInnerUp:      0.25,
			EyeSquintLeft:    0.2,
			EyeSquintRight:   0.2,
			CheekSquintLeft:  0.15,
			CheekSquintRight: 0.15,
		},
	}
)

var expressionPresets = map[Emotion]ExpressionPreset{
	EmotionNeutral:  PresetNeutral,
	EmotionHappy:    PresetHappy,
	EmotionSad:      PresetSad,
	EmotionConfused: PresetConfused,
	EmotionAngry:    PresetAngry,
	EmotionLaughing: PresetLaughing,
	EmotionDancing:  PresetDancing,
	EmotionFlirty:   PresetFlirty,
	EmotionLoving:   PresetLoving,
}

// ExpressionFor returns the target map for an emotion. Unknown emotions get
// the neutral face. The returned map is a copy.
func ExpressionFor(e Emotion) Expression {
	p, ok := expressionPresets[e]
	if !ok {
		p = PresetNeutral
	}
	return p.Weights.Clone()
}

func (x Expression) Clone() Expression {
	out := make(Expression, len(x))
	for k, v := range x {
		out[k] = v
	}
	return out
}

// Channels lists the channels the expression drives, sorted by name.
func (x Expression) Channels() []Channel {
	out := make([]Channel, 0, len(x))
	for k := range x {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Scale multiplies every weight and clamps the result to [0,1].
func (x Expression) Scale(s float32) Expression {
	out := make(Expression, len(x))
	for k, v := range x {
		out[k] = mgl32.Clamp(v*s, 0, 1)
	}
	return out
}

// Easing curves for clip cross-fades.

type InterpolationMode int

const (
	InterpLinear InterpolationMode = iota
	InterpEaseInOut
	InterpEaseIn
	InterpEaseOut
)

func (m InterpolationMode) apply(t float32) float32 {
	t = mgl32.Clamp(t, 0, 1)
	switch m {
	case InterpEaseInOut:
		return easeInOutCubic(t)
	case InterpEaseIn:
		return easeInCubic(t)
	case InterpEaseOut:
		return easeOutCubic(t)
	default:
		return t
	}
}

func easeInOutCubic(t float32) float32 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - float32(math.Pow(float64(-2*t+2), 3))/2
}

func easeInCubic(t float32) float32 {
	return t * t * t
}

func easeOutCubic(t float32) float32 {
	return 1 - float32(math.Pow(float64(1-t), 3))
}
