package avatar3d

import "math"

// DefaultMaxCharDurationMs caps how long a single character can hold its mouth
// shape, so a held vowel in the timing data does not pin the mouth.
const DefaultMaxCharDurationMs = 150.0

// AlignmentChar records when one character of the reply is audible.
type AlignmentChar struct {
	Character string  `json:"character"`
	StartMs   float64 `json:"start_time_ms"`
	EndMs     float64 `json:"end_time_ms"`
}

// Alignment is the ordered character timing for one spoken reply. It is never
// mutated after it reaches the engine.
type Alignment []AlignmentChar

// ActiveAt returns the first character whose interval
// [start, start+min(end-start, capMs)) contains tMs.
func (a Alignment) ActiveAt(tMs, capMs float64) (AlignmentChar, int, bool) {
	if capMs <= 0 {
		capMs = DefaultMaxCharDurationMs
	}
	for i, c := range a {
		span := math.Min(c.EndMs-c.StartMs, capMs)
		if tMs >= c.StartMs && tMs < c.StartMs+span {
			return c, i, true
		}
	}
	return AlignmentChar{}, -1, false
}

// VisemeAt resolves the viseme for playback time tMs. Gaps, whitespace and
// unmapped characters resolve to no viseme.
func (a Alignment) VisemeAt(tMs, capMs float64) (VisemeShape, bool) {
	c, _, ok := a.ActiveAt(tMs, capMs)
	if !ok {
		return "", false
	}
	return MapCharacterToViseme(c.Character)
}

// DurationMs is the end time of the last character.
func (a Alignment) DurationMs() float64 {
	var end float64
	for _, c := range a {
		end = math.Max(end, c.EndMs)
	}
	return end
}

// AlignmentFromSeconds builds an alignment from the parallel arrays TTS
// services return. A missing start is treated as 0 and a missing end as
// start+fallbackSec.
func AlignmentFromSeconds(chars []string, starts, ends []float64, fallbackSec float64) Alignment {
	out := make(Alignment, 0, len(chars))
	for i, ch := range chars {
		var start float64
		if i < len(starts) {
			start = starts[i]
		}
		end := start + fallbackSec
		if i < len(ends) && ends[i] != 0 {
			end = ends[i]
		}
		out = append(out, AlignmentChar{
			Character: ch,
			StartMs:   start * 1000,
			EndMs:     end * 1000,
		})
	}
	return out
}
