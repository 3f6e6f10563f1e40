package avatar3d

import (
	"strings"
	"unicode/utf8"
)

// VisemeShape identifies a mouth shape. Values match the Oculus viseme names
// used by the avatar meshes, so the morph channel is "viseme_" + shape.
type VisemeShape string

const (
	VisemeSil VisemeShape = "sil"
	VisemePP  VisemeShape = "PP"
	VisemeFF  VisemeShape = "FF"
	VisemeTH  VisemeShape = "TH"
	VisemeDD  VisemeShape = "DD"
	VisemeKK  VisemeShape = "kk"
	VisemeCH  VisemeShape = "CH"
	VisemeSS  VisemeShape = "SS"
	VisemeNN  VisemeShape = "nn"
	VisemeRR  VisemeShape = "RR"
	VisemeAA  VisemeShape = "aa"
	VisemeE   VisemeShape = "E"
	VisemeI   VisemeShape = "I"
	VisemeO   VisemeShape = "O"
	VisemeU   VisemeShape = "U"
)

// AllVisemes is the closed viseme set in Oculus order.
var AllVisemes = []VisemeShape{
	VisemeSil, VisemePP, VisemeFF, VisemeTH, VisemeDD, VisemeKK, VisemeCH, VisemeSS,
	VisemeNN, VisemeRR, VisemeAA, VisemeE, VisemeI, VisemeO, VisemeU,
}

// BaseVisemeIntensity is the shared intensity every viseme multiplier scales.
const BaseVisemeIntensity float32 = 0.35

// Channel returns the morph channel that drives the viseme.
func (v VisemeShape) Channel() Channel {
	return Channel("viseme_" + string(v))
}

var letterVisemes = map[byte]VisemeShape{
	'A': VisemeAA,
	'B': VisemePP,
	'C': VisemeKK,
	'D': VisemeDD,
	'E': VisemeE,
	'F': VisemeFF,
	'G': VisemeKK,
	'H': VisemeE, // breath; a wide open mouth reads wrong
	'I': VisemeI,
	'J': VisemeCH,
	'K': VisemeKK,
	'L': VisemeNN,
	'M': VisemePP,
	'N': VisemeNN,
	'O': VisemeO,
	'P': VisemePP,
	'Q': VisemeKK,
	'R': VisemeRR,
	'S': VisemeSS,
	'T': VisemeDD,
	'U': VisemeU,
	'V': VisemeFF,
	'W': VisemeU,
	'X': VisemeSS,
	'Y': VisemeI,
	'Z': VisemeSS,
}

// Open shapes look exaggerated at full strength.
var visemeIntensity = map[VisemeShape]float32{
	VisemeAA: 0.6,
	VisemeO:  0.7,
	VisemeU:  0.8,
	VisemeE:  0.9,
	VisemeI:  0.9,
	VisemePP: 1.0,
	VisemeFF: 1.0,
	VisemeSS: 0.8,
	VisemeTH: 0.8,
	VisemeDD: 0.9,
	VisemeKK: 0.8,
	VisemeCH: 0.9,
	VisemeNN: 0.9,
	VisemeRR: 0.9,
}

// MapCharacterToViseme maps a single letter to its mouth shape. Lower case is
// folded to upper case; whitespace, punctuation, digits and multi-rune input
// map to nothing.
func MapCharacterToViseme(ch string) (VisemeShape, bool) {
	ch = strings.TrimSpace(ch)
	if utf8.RuneCountInString(ch) != 1 {
		return "", false
	}
	ch = strings.ToUpper(ch)
	if len(ch) != 1 {
		return "", false
	}
	v, ok := letterVisemes[ch[0]]
	return v, ok
}

// IntensityMultiplier returns the damping factor for a viseme, 1.0 when the
// viseme has no entry.
func IntensityMultiplier(v VisemeShape) float32 {
	if m, ok := visemeIntensity[v]; ok {
		return m
	}
	return 1.0
}

// VisemeTargetIntensity is the blend target for a viseme.
func VisemeTargetIntensity(v VisemeShape) float32 {
	return BaseVisemeIntensity * IntensityMultiplier(v)
}

// VisemeCell carries the active viseme from the tracking loop to the render
// callback. TrackViseme is its only writer and Frame its only reader; both
// run on the frame loop goroutine.
type VisemeCell struct {
	shape  VisemeShape
	active bool
}

// Set marks v as the active viseme.
func (c *VisemeCell) Set(v VisemeShape) {
	c.shape = v
	c.active = true
}

// Clear drops the active viseme; the mouth then decays to rest.
func (c *VisemeCell) Clear() {
	c.shape = ""
	c.active = false
}

// Get returns the active viseme and whether there is one.
func (c *VisemeCell) Get() (VisemeShape, bool) {
	return c.shape, c.active
}
