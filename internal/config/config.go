// Package config provides configuration management for the companion
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	User    UserConfig    `mapstructure:"user" yaml:"user"`
	Chat    ChatConfig    `mapstructure:"chat" yaml:"chat"`
	TTS     TTSConfig     `mapstructure:"tts" yaml:"tts"`
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Avatar  AvatarConfig  `mapstructure:"avatar" yaml:"avatar"`
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Credits CreditsConfig `mapstructure:"credits" yaml:"credits"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// UserConfig identifies the user
type UserConfig struct {
	ID          string `mapstructure:"id" yaml:"id"`
	CharacterID string `mapstructure:"character_id" yaml:"character_id"`
}

// ChatConfig configures the language model
type ChatConfig struct {
	Provider     string        `mapstructure:"provider" yaml:"provider"` // openai, gemini
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	Model        string        `mapstructure:"model" yaml:"model"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel  string        `mapstructure:"gemini_model" yaml:"gemini_model"`
	MaxTokens    int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TTSConfig configures text-to-speech
type TTSConfig struct {
	Provider         string        `mapstructure:"provider" yaml:"provider"` // inworld, elevenlabs
	InworldAPIKey    string        `mapstructure:"inworld_api_key" yaml:"inworld_api_key"`
	InworldModel     string        `mapstructure:"inworld_model" yaml:"inworld_model"`
	ElevenLabsAPIKey string        `mapstructure:"elevenlabs_api_key" yaml:"elevenlabs_api_key"`
	ElevenLabsModel  string        `mapstructure:"elevenlabs_model" yaml:"elevenlabs_model"`
	SpeakingRate     float64       `mapstructure:"speaking_rate" yaml:"speaking_rate"`
	Temperature      float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AudioConfig configures playback
type AudioConfig struct {
	SampleRate   int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	ChannelCount int           `mapstructure:"channel_count" yaml:"channel_count"`
	BufferSize   time.Duration `mapstructure:"buffer_size" yaml:"buffer_size"`
	OutputVolume int           `mapstructure:"output_volume" yaml:"output_volume"` // 0-100
}

// AvatarConfig configures the animation engine
type AvatarConfig struct {
	ModelPath         string            `mapstructure:"model_path" yaml:"model_path"`
	HeadMesh          string            `mapstructure:"head_mesh" yaml:"head_mesh"`
	SecondaryMeshes   []string          `mapstructure:"secondary_meshes" yaml:"secondary_meshes"`
	Clips             map[string]string `mapstructure:"clips" yaml:"clips"` // clip id -> .glb
	FPS               int               `mapstructure:"fps" yaml:"fps"`
	ExpressionRate    float64           `mapstructure:"expression_rate" yaml:"expression_rate"`
	VisemeRate        float64           `mapstructure:"viseme_rate" yaml:"viseme_rate"`
	DecayRate         float64           `mapstructure:"decay_rate" yaml:"decay_rate"`
	ExpressionScale   float64           `mapstructure:"expression_scale" yaml:"expression_scale"`
	MaxCharDuration   time.Duration     `mapstructure:"max_char_duration" yaml:"max_char_duration"`
	FadeIn            time.Duration     `mapstructure:"fade_in" yaml:"fade_in"`
	FadeOut           time.Duration     `mapstructure:"fade_out" yaml:"fade_out"`
	Blink             bool              `mapstructure:"blink" yaml:"blink"`
	EmotionResetDelay time.Duration     `mapstructure:"emotion_reset_delay" yaml:"emotion_reset_delay"`
}

// StreamConfig configures the frame stream to renderers
type StreamConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Path     string `mapstructure:"path" yaml:"path"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"` // json, msgpack
	Buffer   int    `mapstructure:"buffer" yaml:"buffer"`
}

// CreditsConfig configures the credit ledger
type CreditsConfig struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Starting int    `mapstructure:"starting" yaml:"starting"`
}

// LogConfig configures logging
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir := defaultDir()
	return &Config{
		User: UserConfig{
			ID:          "default-user",
			CharacterID: DefaultCharacterID,
		},
		Chat: ChatConfig{
			Provider:    "openai",
			BaseURL:     "https://api.deepinfra.com/v1/openai",
			Model:       "cognitivecomputations/dolphin-2.6-mixtral-8x7b",
			GeminiModel: "gemini-2.0-flash",
			MaxTokens:   150,
			Temperature: 0.9,
			Timeout:     30 * time.Second,
		},
		TTS: TTSConfig{
			Provider:        "inworld",
			InworldModel:    "inworld-tts-1",
			ElevenLabsModel: "eleven_turbo_v2_5",
			SpeakingRate:    0.9,
			Temperature:     1.1,
			Timeout:         30 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate:   48000,
			ChannelCount: 2,
			BufferSize:   50 * time.Millisecond,
			OutputVolume: 100,
		},
		Avatar: AvatarConfig{
			HeadMesh:          "Wolf3D_Head",
			SecondaryMeshes:   []string{"Wolf3D_Teeth"},
			Clips:             map[string]string{},
			FPS:               60,
			ExpressionRate:    0.1,
			VisemeRate:        0.2,
			DecayRate:         0.15,
			ExpressionScale:   1.0,
			MaxCharDuration:   150 * time.Millisecond,
			FadeIn:            500 * time.Millisecond,
			FadeOut:           300 * time.Millisecond,
			Blink:             false,
			EmotionResetDelay: 5 * time.Second,
		},
		Stream: StreamConfig{
			Addr:     "127.0.0.1:8765",
			Path:     "/frames",
			Encoding: "json",
			Buffer:   8,
		},
		Credits: CreditsConfig{
			DSN:      filepath.Join(dir, "credits.db"),
			Starting: 10,
		},
		Log: LogConfig{
			Level:   "info",
			Dir:     filepath.Join(dir, "logs"),
			Console: true,
		},
	}
}

// API keys keep the names the hosted services document.
var envBindings = map[string]string{
	"chat.api_key":           "DEEPINFRA_API_KEY",
	"chat.gemini_api_key":    "GEMINI_API_KEY",
	"tts.inworld_api_key":    "INWORLD_API_KEY",
	"tts.elevenlabs_api_key": "ELEVENLABS_API_KEY",
}

// Loader reads a config file plus environment overrides and can watch the
// file for edits.
type Loader struct {
	v    *viper.Viper
	path string

	mu  sync.Mutex
	cfg *Config
}

// NewLoader builds a loader. An empty path searches ~/.cortexcompanion and the
// working directory for config.yaml.
func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDir())
		v.AddConfigPath(".")
	}

	// Environment variable overrides
	v.SetEnvPrefix("COMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, "", reflect.ValueOf(*DefaultConfig()))
	for key, env := range envBindings {
		_ = v.BindEnv(key, "COMPANION_"+env, env)
	}

	return &Loader{v: v, path: path}
}

// Load reads configuration from file and environment
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Load reads the file if present. A missing file is not an error; defaults
// and environment still apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Current returns the last successfully loaded config.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// ConfigFile returns the file viper resolved, empty when none was found.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch re-reads the file on every write and hands the result to fn. A
// config that fails to decode is reported and the previous one stays current.
func (l *Loader) Watch(fn func(*Config, error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.unmarshal()
		fn(cfg, err)
	})
	l.v.WatchConfig()
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Chat.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("chat.provider %q: want openai or gemini", c.Chat.Provider)
	}
	switch c.TTS.Provider {
	case "inworld", "elevenlabs":
	default:
		return fmt.Errorf("tts.provider %q: want inworld or elevenlabs", c.TTS.Provider)
	}
	switch c.Stream.Encoding {
	case "json", "msgpack":
	default:
		return fmt.Errorf("stream.encoding %q: want json or msgpack", c.Stream.Encoding)
	}
	if c.Avatar.FPS <= 0 || c.Avatar.FPS > 240 {
		return fmt.Errorf("avatar.fps %d out of range", c.Avatar.FPS)
	}
	for name, rate := range map[string]float64{
		"avatar.expression_rate": c.Avatar.ExpressionRate,
		"avatar.viseme_rate":     c.Avatar.VisemeRate,
		"avatar.decay_rate":      c.Avatar.DecayRate,
	} {
		if rate <= 0 || rate > 1 {
			return fmt.Errorf("%s %.3f: want (0,1]", name, rate)
		}
	}
	if GetCharacter(c.User.CharacterID) == nil {
		return fmt.Errorf("user.character_id %q: unknown character", c.User.CharacterID)
	}
	return nil
}

// Save writes the configuration to path, or to the default location when
// path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = filepath.Join(defaultDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	v.Set("user", cfg.User)
	v.Set("chat", redactChat(cfg.Chat))
	v.Set("tts", redactTTS(cfg.TTS))
	v.Set("audio", cfg.Audio)
	v.Set("avatar", cfg.Avatar)
	v.Set("stream", cfg.Stream)
	v.Set("credits", cfg.Credits)
	v.Set("log", cfg.Log)
	return v.WriteConfigAs(path)
}

// keys belong in the environment, not on disk
func redactChat(c ChatConfig) ChatConfig {
	c.APIKey, c.GeminiAPIKey = "", ""
	return c
}

func redactTTS(c TTSConfig) TTSConfig {
	c.InworldAPIKey, c.ElevenLabsAPIKey = "", ""
	return c
}

// registerDefaults tells viper about every key so AutomaticEnv can override
// keys the file does not mention.
func registerDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct {
			registerDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return defaultDir()
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cortexcompanion"
	}
	return filepath.Join(home, ".cortexcompanion")
}
