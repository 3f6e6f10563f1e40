package avatar3d

import "strings"

// Emotion is the closed set of moods a chat reply can carry.
type Emotion string

const (
	EmotionNeutral  Emotion = "neutral"
	EmotionHappy    Emotion = "happy"
	EmotionSad      Emotion = "sad"
	EmotionConfused Emotion = "confused"
	EmotionAngry    Emotion = "angry"
	EmotionLaughing Emotion = "laughing"
	EmotionDancing  Emotion = "dancing"
	EmotionFlirty   Emotion = "flirty"
	EmotionLoving   Emotion = "loving"
)

// AllEmotions lists every emotion the engine has a preset for.
var AllEmotions = []Emotion{
	EmotionNeutral, EmotionHappy, EmotionSad, EmotionConfused, EmotionAngry,
	EmotionLaughing, EmotionDancing, EmotionFlirty, EmotionLoving,
}

// ParseEmotion normalizes a label from a model reply. Anything outside the
// closed set, including legacy character moods, becomes neutral.
func ParseEmotion(s string) Emotion {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	if e.Valid() {
		return e
	}
	return EmotionNeutral
}

// Valid reports whether e is one of AllEmotions.
func (e Emotion) Valid() bool {
	for _, known := range AllEmotions {
		if e == known {
			return true
		}
	}
	return false
}

// String returns the wire name, e.g. "happy".
func (e Emotion) String() string {
	return string(e)
}
