package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

// player is the part of *oto.Player a Source drives.
type player interface {
	Play()
	Pause()
	IsPlaying() bool
	BufferedSize() int
	SetVolume(float64)
	Err() error
	Close() error
}

// Output owns the process-wide oto context. oto allows one context per
// process, so every reply is converted to its rate and channel count.
type Output struct {
	logger    zerolog.Logger
	config    AudioConfig
	newPlayer func(io.Reader) player
}

// NewOutput opens the audio device and waits until it is ready.
func NewOutput(config AudioConfig, logger zerolog.Logger) (*Output, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.ChannelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	logger = logger.With().Str("component", "audio").Logger()
	logger.Info().
		Int("sampleRate", config.SampleRate).
		Int("channels", config.ChannelCount).
		Msg("Audio output ready")

	return &Output{
		logger: logger,
		config: config,
		newPlayer: func(r io.Reader) player {
			return ctx.NewPlayer(r)
		},
	}, nil
}

func (o *Output) Config() AudioConfig {
	return o.config
}

// NewSource prepares one reply for playback. MP3 is decoded up front so the
// position can be computed from bytes.
func (o *Output) NewSource(data []byte, format AudioFormat) (*Source, error) {
	var pcm []byte
	switch format {
	case FormatMP3:
		decoded, rate, err := DecodeMP3(data)
		if err != nil {
			return nil, err
		}
		// go-mp3 always yields stereo
		pcm = Convert(decoded, rate, 2, o.config.SampleRate, o.config.ChannelCount)
	case FormatPCM:
		pcm = data
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	s := newSource(pcm, o.config, o.newPlayer)
	o.logger.Debug().
		Str("format", string(format)).
		Dur("duration", s.Duration()).
		Msg("Audio source prepared")
	return s, nil
}

// Source is one decoded reply. It satisfies avatar3d.AudioSource.
type Source struct {
	config AudioConfig
	total  int
	reader *countingReader
	player player

	mu      sync.Mutex
	started bool
	closed  bool
}

func newSource(pcm []byte, config AudioConfig, newPlayer func(io.Reader) player) *Source {
	r := &countingReader{r: bytes.NewReader(pcm)}
	p := newPlayer(r)
	if config.OutputVolume > 0 {
		p.SetVolume(config.OutputVolume)
	}
	return &Source{
		config: config,
		total:  len(pcm),
		reader: r,
		player: p,
	}
}

// Duration is the length of the reply.
func (s *Source) Duration() time.Duration {
	return s.config.Duration(s.total)
}

func (s *Source) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	s.started = true
	s.player.Play()
	return nil
}

// Position is bytes handed to the device minus what it still buffers.
func (s *Source) Position() time.Duration {
	played := int(s.reader.n.Load()) - s.player.BufferedSize()
	if played < 0 {
		played = 0
	}
	return s.config.Duration(played)
}

// Finished reports that every byte was read and the device has drained.
func (s *Source) Finished() bool {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return false
	}
	return s.reader.eof.Load() && !s.player.IsPlaying()
}

func (s *Source) Err() error {
	return s.player.Err()
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.player.Pause()
	return s.player.Close()
}

// countingReader is read from oto's mixing goroutine.
type countingReader struct {
	r   io.Reader
	n   atomic.Int64
	eof atomic.Bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	if err == io.EOF {
		c.eof.Store(true)
	}
	return n, err
}
