package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/cortexcompanion/internal/audio"
	"github.com/normanking/cortexcompanion/internal/avatar3d"
	"github.com/normanking/cortexcompanion/internal/bus"
	"github.com/normanking/cortexcompanion/internal/chat"
	"github.com/normanking/cortexcompanion/internal/companion"
	"github.com/normanking/cortexcompanion/internal/config"
	"github.com/normanking/cortexcompanion/internal/credits"
	"github.com/normanking/cortexcompanion/internal/framestream"
	"github.com/normanking/cortexcompanion/internal/logging"
	"github.com/normanking/cortexcompanion/internal/tts"
)

var errQuit = errors.New("quit")

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the companion: frame loop, renderer stream and chat prompt",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logs, err := logging.New(logging.Config{
		Dir:     cfg.Log.Dir,
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return err
	}
	defer logs.Close()
	log := logs.Component("serve")
	if f := loader.ConfigFile(); f != "" {
		log.Info().Str("file", f).Msg("Configuration loaded")
	}

	character := config.GetCharacter(cfg.User.CharacterID)
	engine := avatar3d.NewEngine(
		loadRig(cfg.Avatar, log),
		loadClips(cfg.Avatar, log),
		avatar3d.NewAvatar(avatar3d.AvatarID(character.ID)),
		engineConfig(cfg.Avatar),
		logs.Component("engine"),
	)
	loop := avatar3d.NewLoop(engine, cfg.Avatar.FPS, logs.Zerolog())

	eventBus := bus.NewEventBus()
	eventBus.SubscribeAll(func(e bus.Event) {
		log.Debug().Str("event", string(e.Type)).Interface("data", e.Data).Msg("Event")
	})

	hub, err := framestream.NewHub(framestream.Config{
		Addr:     cfg.Stream.Addr,
		Path:     cfg.Stream.Path,
		Encoding: cfg.Stream.Encoding,
		Buffer:   cfg.Stream.Buffer,
	}, eventBus, logs.Zerolog())
	if err != nil {
		return err
	}
	loop.AddSink(hub)

	out, err := audio.NewOutput(audio.AudioConfig{
		SampleRate:   cfg.Audio.SampleRate,
		ChannelCount: cfg.Audio.ChannelCount,
		BufferSize:   cfg.Audio.BufferSize,
		OutputVolume: float64(cfg.Audio.OutputVolume) / 100,
	}, logs.Zerolog())
	if err != nil {
		return err
	}

	ledger, err := credits.Open(cfg.Credits.DSN)
	if err != nil {
		return err
	}
	defer ledger.Close()
	bal, err := ledger.EnsureUser(cmd.Context(), cfg.User.ID, cfg.Credits.Starting)
	if err != nil {
		return err
	}
	log.Info().Str("user", cfg.User.ID).Int("credits", bal).Msg("Credits ready")

	session, err := companion.NewSession(companion.Config{
		UserID:            cfg.User.ID,
		CharacterID:       cfg.User.CharacterID,
		EmotionResetDelay: cfg.Avatar.EmotionResetDelay,
	}, companion.Deps{
		Loop: loop,
		Chat: newChatProvider(cfg.Chat, logs.Zerolog()),
		TTS:  newTTSProvider(cfg.TTS, logs.Zerolog()),
		NewSource: func(data []byte, format string) (avatar3d.AudioSource, error) {
			src, err := out.NewSource(data, audio.AudioFormat(format))
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		Ledger: ledger,
		Bus:    eventBus,
	}, logs.Zerolog())
	if err != nil {
		return err
	}

	loader.Watch(func(c *config.Config, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("Config reload rejected")
			return
		}
		ec := engineConfig(c.Avatar)
		loop.Do(func() { engine.Configure(ec) })
		log.Info().Msg("Avatar tunables reloaded")
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return hub.Serve(gctx) })
	g.Go(func() error {
		p := &prompt{session: session, ledger: ledger, userID: cfg.User.ID, out: cmd.OutOrStdout()}
		return p.run(gctx, readLines(gctx, cmd.InOrStdin()))
	})

	err = g.Wait()
	session.Stop()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func engineConfig(a config.AvatarConfig) avatar3d.EngineConfig {
	return avatar3d.EngineConfig{
		ExpressionRate:    float32(a.ExpressionRate),
		VisemeRate:        float32(a.VisemeRate),
		DecayRate:         float32(a.DecayRate),
		ExpressionScale:   float32(a.ExpressionScale),
		MaxCharDurationMs: float64(a.MaxCharDuration.Milliseconds()),
		FadeIn:            a.FadeIn,
		FadeOut:           a.FadeOut,
		Blink:             a.Blink,
	}
}

// loadRig falls back to the built-in rig; a bad asset must not keep the
// companion from talking.
func loadRig(a config.AvatarConfig, log zerolog.Logger) *avatar3d.Rig {
	if a.ModelPath == "" {
		return avatar3d.DefaultRig()
	}
	rig, err := avatar3d.LoadRig(a.ModelPath, a.HeadMesh, a.SecondaryMeshes)
	if err != nil {
		log.Warn().Err(err).Str("model", a.ModelPath).Msg("Using default rig")
		return avatar3d.DefaultRig()
	}
	log.Info().
		Str("head", rig.Head.Name).
		Int("channels", len(rig.Head.Channels)).
		Int("secondary", len(rig.Secondary)).
		Msg("Rig loaded")
	return rig
}

func loadClips(a config.AvatarConfig, log zerolog.Logger) avatar3d.ClipLibrary {
	if len(a.Clips) == 0 {
		return avatar3d.DefaultClipLibrary()
	}
	paths := make(map[avatar3d.ClipID]string, len(a.Clips))
	for id, path := range a.Clips {
		paths[avatar3d.ClipID(id)] = path
	}
	lib, err := avatar3d.LoadClipLibrary(paths)
	if err != nil {
		log.Warn().Err(err).Msg("Using default clip durations")
		return avatar3d.DefaultClipLibrary()
	}
	return lib
}

func newChatProvider(c config.ChatConfig, logger zerolog.Logger) chat.Provider {
	if c.Provider == "gemini" {
		return chat.NewGeminiProvider(logger, chat.GeminiConfig{
			APIKey:      c.GeminiAPIKey,
			Model:       c.GeminiModel,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			Timeout:     c.Timeout,
		})
	}
	return chat.NewOpenAIProvider(logger, chat.OpenAIConfig{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.Timeout,
	})
}

func newTTSProvider(c config.TTSConfig, logger zerolog.Logger) tts.Provider {
	if c.Provider == "elevenlabs" {
		ec := tts.DefaultElevenLabsConfig()
		ec.APIKey = c.ElevenLabsAPIKey
		if c.ElevenLabsModel != "" {
			ec.ModelID = c.ElevenLabsModel
		}
		ec.Timeout = c.Timeout
		return tts.NewElevenLabsProvider(logger, ec)
	}
	ic := tts.DefaultInworldConfig()
	ic.APIKey = c.InworldAPIKey
	if c.InworldModel != "" {
		ic.ModelID = c.InworldModel
	}
	if c.SpeakingRate > 0 {
		ic.SpeakingRate = c.SpeakingRate
	}
	if c.Temperature > 0 {
		ic.Temperature = c.Temperature
	}
	ic.Timeout = c.Timeout
	return tts.NewInworldProvider(logger, ic)
}

// readLines feeds stdin lines until EOF. The scanner goroutine may outlive
// ctx while blocked in Read.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// sender is what the prompt drives; *companion.Session implements it.
type sender interface {
	Send(ctx context.Context, text string) (*companion.Reply, error)
	SwitchCharacter(id string) error
	Stop()
}

type balancer interface {
	Balance(ctx context.Context, userID string) (int, error)
}

type prompt struct {
	session sender
	ledger  balancer
	userID  string
	out     io.Writer
}

// run handles one line at a time until input ends, ctx is done or /quit.
func (p *prompt) run(ctx context.Context, lines <-chan string) error {
	fmt.Fprintln(p.out, "Type a message. Commands: /switch <character>, /stop, /credits, /quit")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := p.handle(ctx, strings.TrimSpace(line)); err != nil {
				return err
			}
		}
	}
}

func (p *prompt) handle(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		reply, err := p.session.Send(ctx, line)
		if err != nil {
			fmt.Fprintf(p.out, "! %v\n", err)
			return nil
		}
		fmt.Fprintf(p.out, "[%s] %s\n", reply.Emotion, reply.Text)
		return nil
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	switch name {
	case "quit", "exit":
		return errQuit
	case "stop":
		p.session.Stop()
	case "switch":
		if err := p.session.SwitchCharacter(strings.TrimSpace(arg)); err != nil {
			fmt.Fprintf(p.out, "! %v\n", err)
			return nil
		}
		fmt.Fprintf(p.out, "switched to %s\n", strings.TrimSpace(arg))
	case "credits":
		bal, err := p.ledger.Balance(ctx, p.userID)
		if err != nil {
			fmt.Fprintf(p.out, "! %v\n", err)
			return nil
		}
		fmt.Fprintf(p.out, "%d credits\n", bal)
	default:
		fmt.Fprintf(p.out, "! unknown command /%s\n", name)
	}
	return nil
}
