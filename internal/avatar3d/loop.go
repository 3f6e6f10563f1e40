package avatar3d

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultFPS = 60
	maxFrameDt = 100 * time.Millisecond
)

// FrameSink receives each rendered frame. Publish runs on the loop goroutine
// and must not block.
type FrameSink interface {
	Publish(Frame)
}

// FrameSinkFunc adapts a func to FrameSink.
type FrameSinkFunc func(Frame)

func (f FrameSinkFunc) Publish(fr Frame) { f(fr) }

// Loop owns the engine and runs it on a single goroutine. Other goroutines
// hand it work with Do.
type Loop struct {
	engine *Engine
	fps    int
	logger zerolog.Logger

	mu    sync.Mutex
	tasks []func()
	sinks []FrameSink

	last time.Time
}

func NewLoop(engine *Engine, fps int, logger zerolog.Logger) *Loop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Loop{
		engine: engine,
		fps:    fps,
		logger: logger.With().Str("component", "loop").Logger(),
	}
}

func (l *Loop) Engine() *Engine { return l.engine }

// AddSink registers a frame consumer.
func (l *Loop) AddSink(s FrameSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Do queues fn to run on the loop goroutine at the start of the next tick.
func (l *Loop) Do(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
}

// Call runs fn on the loop goroutine and waits for it, or for ctx.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	l.Do(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run ticks at the configured rate until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(l.fps))
	defer ticker.Stop()

	l.logger.Info().Int("fps", l.fps).Msg("frame loop started")
	l.last = time.Now()
	for {
		select {
		case <-ctx.Done():
			l.engine.StopSpeaking()
			l.logger.Info().Msg("frame loop stopped")
			return nil
		case now := <-ticker.C:
			dt := now.Sub(l.last)
			l.last = now
			l.Tick(dt)
		}
	}
}

// Tick runs one frame: queued tasks, viseme tracking, blending, publish.
// dt is clamped to 100ms so a stalled loop does not jump.
func (l *Loop) Tick(dt time.Duration) Frame {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	sinks := l.sinks
	l.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}

	if dt > maxFrameDt {
		dt = maxFrameDt
	}
	if dt < 0 {
		dt = 0
	}

	l.engine.TrackViseme()
	frame := l.engine.Frame(dt)
	for _, s := range sinks {
		s.Publish(frame)
	}
	return frame
}
