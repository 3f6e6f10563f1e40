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
	InworldAPIEndpoint  = "https://api.inworld.ai"
	InworldDefaultVoice = "Ashley"

	// Inworld omits some end times; hold each such character 50ms.
	inworldFallbackEnd = 0.05
)

type InworldProvider struct {
	logger zerolog.Logger
	config *InworldConfig
	client *http.Client
}

type InworldConfig struct {
	APIKey       string        `json:"api_key"` // base64 basic credentials
	BaseURL      string        `json:"base_url"`
	DefaultVoice string        `json:"default_voice"`
	ModelID      string        `json:"model_id"`
	SpeakingRate float64       `json:"speaking_rate"` // 0.5 to 1.5
	Temperature  float64       `json:"temperature"`   // 0.6 to 1.2
	Timeout      time.Duration `json:"timeout"`
}

func DefaultInworldConfig() *InworldConfig {
	return &InworldConfig{
		BaseURL:      InworldAPIEndpoint,
		DefaultVoice: InworldDefaultVoice,
		ModelID:      "inworld-tts-1",
		SpeakingRate: 0.9,
		Temperature:  1.1,
		Timeout:      30 * time.Second,
	}
}

func NewInworldProvider(logger zerolog.Logger, config *InworldConfig) *InworldProvider {
	if config == nil {
		config = DefaultInworldConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = InworldAPIEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &InworldProvider{
		logger: logger.With().Str("provider", "inworld-tts").Logger(),
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (p *InworldProvider) Name() string {
	return "inworld"
}

func (p *InworldProvider) Health(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("inworld: %w: api key not set", ErrProviderUnavailable)
	}
	return nil
}

type inworldRequest struct {
	Text          string             `json:"text"`
	VoiceID       string             `json:"voiceId"`
	ModelID       string             `json:"modelId"`
	TimestampType string             `json:"timestampType"`
	OutputFormat  string             `json:"outputFormat"`
	AudioConfig   inworldAudioConfig `json:"audioConfig"`
}

type inworldAudioConfig struct {
	SpeakingRate float64 `json:"speakingRate"`
	Temperature  float64 `json:"temperature"`
}

type inworldResponse struct {
	AudioContent  string `json:"audioContent"`
	TimestampInfo *struct {
		CharacterAlignment *struct {
			Characters []string  `json:"characters"`
			Starts     []float64 `json:"characterStartTimeSeconds"`
			Ends       []float64 `json:"characterEndTimeSeconds"`
		} `json:"characterAlignment"`
	} `json:"timestampInfo"`
}

func (p *InworldProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
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

	jsonData, err := json.Marshal(inworldRequest{
		Text:          req.Text,
		VoiceID:       voiceID,
		ModelID:       p.config.ModelID,
		TimestampType: "CHARACTER",
		OutputFormat:  "mp3",
		AudioConfig: inworldAudioConfig{
			SpeakingRate: p.config.SpeakingRate,
			Temperature:  p.config.Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/tts/v1/voice"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Provider: "inworld", Status: resp.StatusCode, Body: string(body)}
	}

	var out inworldResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	audio, err := decodeAudio(out.AudioContent)
	if err != nil {
		return nil, err
	}

	var alignment avatar3d.Alignment
	if out.TimestampInfo != nil && out.TimestampInfo.CharacterAlignment != nil {
		ca := out.TimestampInfo.CharacterAlignment
		alignment = avatar3d.AlignmentFromSeconds(ca.Characters, ca.Starts, ca.Ends, inworldFallbackEnd)
	}

	processingTime := time.Since(startTime)
	p.logger.Info().
		Str("voice", voiceID).
		Int("audioBytes", len(audio)).
		Int("chars", len(alignment)).
		Dur("processingTime", processingTime).
		Msg("Inworld TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audio,
		Format:         "mp3",
		Alignment:      alignment,
		ProcessingTime: processingTime,
		VoiceID:        voiceID,
		Provider:       p.Name(),
	}, nil
}
