package avatar3d

import (
	"fmt"
	"time"

	"github.com/qmuntal/gltf"
)

// ClipID names a skeletal animation clip.
type ClipID string

const (
	ClipIdle     ClipID = "idle"
	ClipTalking  ClipID = "talking"
	ClipHappy    ClipID = "happy"
	ClipSad      ClipID = "sad"
	ClipConfused ClipID = "confused"
	ClipAngry    ClipID = "angry"
	ClipLaughing ClipID = "laughing"
	ClipDance    ClipID = "dance"
)

// OneShotClip is the total emotion to gesture mapping. Dancing is not a
// one-shot and has its own looping clip; neutral, flirty and loving talk with
// the plain talking loop.
func OneShotClip(e Emotion) (ClipID, bool) {
	switch e {
	case EmotionHappy:
		return ClipHappy, true
	case EmotionSad:
		return ClipSad, true
	case EmotionConfused:
		return ClipConfused, true
	case EmotionAngry:
		return ClipAngry, true
	case EmotionLaughing:
		return ClipLaughing, true
	default:
		return "", false
	}
}

// ClipInfo describes how a clip plays.
type ClipInfo struct {
	Duration time.Duration
	Loop     bool
}

// ClipLibrary holds every clip the mixer can play.
type ClipLibrary map[ClipID]ClipInfo

// DefaultClipLibrary is used when no animation files are configured.
func DefaultClipLibrary() ClipLibrary {
	return ClipLibrary{
		ClipIdle:     {Duration: 8 * time.Second, Loop: true},
		ClipTalking:  {Duration: 6 * time.Second, Loop: true},
		ClipHappy:    {Duration: 3 * time.Second},
		ClipSad:      {Duration: 3500 * time.Millisecond},
		ClipConfused: {Duration: 3 * time.Second},
		ClipAngry:    {Duration: 2500 * time.Millisecond},
		ClipLaughing: {Duration: 3 * time.Second},
		ClipDance:    {Duration: 6 * time.Second, Loop: true},
	}
}

func (l ClipLibrary) Info(id ClipID) (ClipInfo, bool) {
	info, ok := l[id]
	return info, ok
}

// LoadClipLibrary starts from the defaults and replaces the duration of every
// clip that has an animation file. Loop flags always come from the defaults.
func LoadClipLibrary(paths map[ClipID]string) (ClipLibrary, error) {
	lib := DefaultClipLibrary()
	for id, path := range paths {
		if path == "" {
			continue
		}
		d, err := ReadClipDuration(path)
		if err != nil {
			return nil, fmt.Errorf("clip %s: %w", id, err)
		}
		info := lib[id]
		info.Duration = d
		lib[id] = info
	}
	return lib, nil
}

// ReadClipDuration returns the length of the first animation in a glTF file,
// taken from the max keyframe time across its samplers.
func ReadClipDuration(path string) (time.Duration, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open gltf: %w", err)
	}
	return clipDuration(doc)
}

func clipDuration(doc *gltf.Document) (time.Duration, error) {
	if len(doc.Animations) == 0 {
		return 0, fmt.Errorf("no animations in file")
	}
	var maxSec float64
	for _, s := range doc.Animations[0].Samplers {
		if s.Input < 0 || s.Input >= len(doc.Accessors) {
			continue
		}
		acc := doc.Accessors[s.Input]
		if len(acc.Max) > 0 && acc.Max[0] > maxSec {
			maxSec = acc.Max[0]
		}
	}
	if maxSec <= 0 {
		return 0, fmt.Errorf("animation has no keyframe range")
	}
	return time.Duration(maxSec * float64(time.Second)), nil
}
