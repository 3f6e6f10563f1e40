// Package audio plays synthesized replies and reports how far playback has
// progressed, which drives lip-sync timing.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrEmptyAudio    = errors.New("audio data is empty")
	ErrSourceClosed  = errors.New("audio source closed")
)

// AudioFormat represents audio encoding format
type AudioFormat string

const (
	FormatPCM AudioFormat = "pcm" // signed 16-bit little endian at the output rate
	FormatMP3 AudioFormat = "mp3"
)

const bytesPerSample = 2

// AudioConfig holds output configuration
type AudioConfig struct {
	SampleRate   int           `json:"sample_rate"` // 44100 or 48000
	ChannelCount int           `json:"channel_count"`
	BufferSize   time.Duration `json:"buffer_size"`
	OutputVolume float64       `json:"output_volume"` // 0.0 to 1.0
}

// DefaultAudioConfig returns sensible defaults
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:   48000,
		ChannelCount: 2,
		BufferSize:   50 * time.Millisecond,
		OutputVolume: 1.0,
	}
}

func (c AudioConfig) validate() error {
	if c.SampleRate != 44100 && c.SampleRate != 48000 {
		return errors.New("sample rate must be 44100 or 48000 Hz")
	}
	if c.ChannelCount != 1 && c.ChannelCount != 2 {
		return errors.New("channel count must be 1 or 2")
	}
	return nil
}

// bytesPerSecond of 16-bit PCM in this layout
func (c AudioConfig) bytesPerSecond() int {
	return c.SampleRate * c.ChannelCount * bytesPerSample
}

// Duration of n bytes of PCM in this layout
func (c AudioConfig) Duration(n int) time.Duration {
	bps := c.bytesPerSecond()
	if bps == 0 || n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}
