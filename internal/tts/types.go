// Package tts provides text-to-speech with character timing for lip-sync.
package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrEmptyText           = errors.New("text is empty")
	ErrNoAudio             = errors.New("response carried no audio")
)

// Provider is the interface all TTS providers must implement
type Provider interface {
	// Name returns the provider identifier (e.g., "inworld")
	Name() string

	// Synthesize converts text to audio plus a character alignment
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// Health checks if the provider is configured
	Health(ctx context.Context) error
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text    string           `json:"text"`
	VoiceID string           `json:"voice_id"`
	Emotion avatar3d.Emotion `json:"emotion,omitempty"` // tunes expressiveness where supported
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio          []byte             `json:"audio"`
	Format         string             `json:"format"` // mp3
	Alignment      avatar3d.Alignment `json:"alignment"`
	ProcessingTime time.Duration      `json:"processing_time"`
	VoiceID        string             `json:"voice_id"`
	Provider       string             `json:"provider"`
}

// APIError is a non-2xx response from a TTS service
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

func decodeAudio(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, ErrNoAudio
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return data, nil
}
