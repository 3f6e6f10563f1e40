package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
)

const (
	ElevenLabsAPIEndpoint  = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultVoice = "HECTtlQhQlGs92mhlNnU"

	elevenLabsFallbackEnd = 0.1
)

type ElevenLabsProvider struct {
	logger zerolog.Logger
	config *ElevenLabsConfig
	client *http.Client
}

type ElevenLabsConfig struct {
	APIKey       string        `json:"api_key"`
	BaseURL      string        `json:"base_url"`
	DefaultVoice string        `json:"default_voice"`
	ModelID      string        `json:"model_id"`
	OutputFormat string        `json:"output_format"`
	Timeout      time.Duration `json:"timeout"`
}

func DefaultElevenLabsConfig() *ElevenLabsConfig {
	return &ElevenLabsConfig{
		BaseURL:      ElevenLabsAPIEndpoint,
		DefaultVoice: ElevenLabsDefaultVoice,
		ModelID:      "eleven_multilingual_v2",
		OutputFormat: "mp3_44100_128",
		Timeout:      30 * time.Second,
	}
}

func NewElevenLabsProvider(logger zerolog.Logger, config *ElevenLabsConfig) *ElevenLabsProvider {
	if config == nil {
		config = DefaultElevenLabsConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = ElevenLabsAPIEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &ElevenLabsProvider{
		logger: logger.With().Str("provider", "elevenlabs-tts").Logger(),
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

func (p *ElevenLabsProvider) Health(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("elevenlabs: %w: api key not set", ErrProviderUnavailable)
	}
	return nil
}

// VoiceSettings trades stability for expressiveness; lower is livelier.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

var emotionVoiceSettings = map[avatar3d.Emotion]VoiceSettings{
	avatar3d.EmotionHappy:    {Stability: 0.35, SimilarityBoost: 0.75},
	avatar3d.EmotionSad:      {Stability: 0.6, SimilarityBoost: 0.8},
	avatar3d.EmotionConfused: {Stability: 0.5, SimilarityBoost: 0.75},
	avatar3d.EmotionAngry:    {Stability: 0.2, SimilarityBoost: 0.75},
	avatar3d.EmotionLaughing: {Stability: 0.2, SimilarityBoost: 0.7},
	avatar3d.EmotionDancing:  {Stability: 0.3, SimilarityBoost: 0.75},
	avatar3d.EmotionNeutral:  {Stability: 0.5, SimilarityBoost: 0.75},
	avatar3d.EmotionFlirty:   {Stability: 0.3, SimilarityBoost: 0.8},
	avatar3d.EmotionLoving:   {Stability: 0.4, SimilarityBoost: 0.8},
}

// VoiceSettingsFor returns the settings for an emotion, neutral when unknown.
func VoiceSettingsFor(e avatar3d.Emotion) VoiceSettings {
	if s, ok := emotionVoiceSettings[e]; ok {
		return s
	}
	return emotionVoiceSettings[avatar3d.EmotionNeutral]
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	OutputFormat  string        `json:"output_format"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type elevenLabsResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Alignment   *struct {
		Characters []string  `json:"characters"`
		Starts     []float64 `json:"character_start_times_seconds"`
		Ends       []float64 `json:"character_end_times_seconds"`
	} `json:"alignment"`
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := p.Health(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	startTime := time.Now()

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.config.DefaultVoice
	}

	jsonData, err := json.Marshal(elevenLabsRequest{
		Text:          req.Text,
		ModelID:       p.config.ModelID,
		OutputFormat:  p.config.OutputFormat,
		VoiceSettings: VoiceSettingsFor(req.Emotion),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/with-timestamps", strings.TrimRight(p.config.BaseURL, "/"), voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Provider: "elevenlabs", Status: resp.StatusCode, Body: string(body)}
	}

	var out elevenLabsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	audio, err := decodeAudio(out.AudioBase64)
	if err != nil {
		return nil, err
	}

	var alignment avatar3d.Alignment
	if out.Alignment != nil {
		alignment = avatar3d.AlignmentFromSeconds(out.Alignment.Characters, out.Alignment.Starts, out.Alignment.Ends, elevenLabsFallbackEnd)
	}

	processingTime := time.Since(startTime)
	p.logger.Info().
		Str("voice", voiceID).
		Str("emotion", req.Emotion.String()).
		Int("audioBytes", len(audio)).
		Int("chars", len(alignment)).
		Dur("processingTime", processingTime).
		Msg("ElevenLabs TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audio,
		Format:         "mp3",
		Alignment:      alignment,
		ProcessingTime: processingTime,
		VoiceID:        voiceID,
		Provider:       p.Name(),
	}, nil
}
