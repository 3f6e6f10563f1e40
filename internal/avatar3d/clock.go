package avatar3d

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoAudioSource is returned when a reply is started without audio.
var ErrNoAudioSource = errors.New("nil audio source")

// AudioSource is a playable reply. Position reports how much audio has
// actually reached the speaker.
type AudioSource interface {
	Play() error
	Position() time.Duration
	Finished() bool
	Err() error
	Close() error
}

// EndReason says why a playback session ended.
type EndReason int

const (
	EndNatural EndReason = iota
	EndStopped
	EndFailed
)

func (r EndReason) String() string {
	switch r {
	case EndNatural:
		return "natural"
	case EndStopped:
		return "stopped"
	case EndFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PlaybackSession is one reply's audio, owned by the clock.
type PlaybackSession struct {
	ID        uuid.UUID
	StartedAt time.Time
}

// EndedFunc runs once per session after its audio has been released.
type EndedFunc func(s PlaybackSession, reason EndReason, err error)

// PlaybackClock maps wall-clock playback to the alignment timeline. All
// methods run on the frame loop goroutine.
type PlaybackClock struct {
	logger  zerolog.Logger
	session *PlaybackSession
	src     AudioSource
	onEnded EndedFunc
	now     func() time.Time
}

func NewPlaybackClock(logger zerolog.Logger) *PlaybackClock {
	return &PlaybackClock{
		logger: logger.With().Str("component", "playback").Logger(),
		now:    time.Now,
	}
}

// OnEnded replaces the end callback.
func (c *PlaybackClock) OnEnded(fn EndedFunc) {
	c.onEnded = fn
}

// Begin starts playing src. An already active session is stopped first. If
// the source fails to start, the session is torn down as EndFailed before
// Begin returns the error, so the end callback still runs once.
func (c *PlaybackClock) Begin(src AudioSource) (*PlaybackSession, error) {
	if src == nil {
		return nil, ErrNoAudioSource
	}
	c.Stop()

	s := &PlaybackSession{ID: uuid.New(), StartedAt: c.now()}
	c.session = s
	c.src = src

	if err := src.Play(); err != nil {
		err = fmt.Errorf("start audio: %w", err)
		c.end(EndFailed, err)
		return nil, err
	}
	c.logger.Debug().Str("session", s.ID.String()).Msg("playback started")
	return s, nil
}

// Active reports whether a session is playing.
func (c *PlaybackClock) Active() bool {
	return c.session != nil
}

// Session returns the active session.
func (c *PlaybackClock) Session() (PlaybackSession, bool) {
	if c.session == nil {
		return PlaybackSession{}, false
	}
	return *c.session, true
}

// ElapsedMs is the playback position in milliseconds, valid only while a
// session is active.
func (c *PlaybackClock) ElapsedMs() (float64, bool) {
	if c.src == nil {
		return 0, false
	}
	return float64(c.src.Position()) / float64(time.Millisecond), true
}

// Poll ends the session when the source has drained or failed.
func (c *PlaybackClock) Poll() {
	if c.src == nil {
		return
	}
	if err := c.src.Err(); err != nil {
		c.end(EndFailed, err)
		return
	}
	if c.src.Finished() {
		c.end(EndNatural, nil)
	}
}

// Stop halts playback. It is a no-op when nothing is playing.
func (c *PlaybackClock) Stop() {
	if c.src == nil {
		return
	}
	c.end(EndStopped, nil)
}

func (c *PlaybackClock) end(reason EndReason, cause error) {
	s, src := c.session, c.src
	c.session, c.src = nil, nil

	if err := src.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("close audio source")
	}

	ev := c.logger.Debug()
	if reason == EndFailed {
		ev = c.logger.Warn().Err(cause)
	}
	ev.Str("session", s.ID.String()).Str("reason", reason.String()).Msg("playback ended")

	if c.onEnded != nil {
		c.onEnded(*s, reason, cause)
	}
}
