package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
)

const (
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel    = "gemini-2.0-flash"
)

// GeminiConfig configures the Gemini generateContent API
type GeminiConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// GeminiProvider implements Provider for Google Gemini. When the model answers
// with only a setEmotion call, the call result is sent back to get the text.
type GeminiProvider struct {
	logger zerolog.Logger
	config GeminiConfig
	client *http.Client
}

func NewGeminiProvider(logger zerolog.Logger, cfg GeminiConfig) *GeminiProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.9
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GeminiProvider{
		logger: logger.With().Str("provider", "gemini-chat").Logger(),
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Gemini API types
type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Tools             []geminiTool           `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []functionDecl `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

func (p *GeminiProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}
	start := time.Now()

	contents := make([]geminiContent, 0, len(req.History)+3)
	for _, m := range req.History {
		role := string(m.Role)
		// Gemini uses "model" instead of "assistant"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Text}}})

	system := &geminiContent{Parts: []geminiPart{{Text: systemPrompt(req.System)}}}

	parts, err := p.generate(ctx, contents, system)
	if err != nil {
		return nil, err
	}
	text, emotion, called := readParts(parts)

	followUp := text == "" && called
	if followUp {
		contents = append(contents,
			geminiContent{Role: "model", Parts: []geminiPart{{
				FunctionCall: &geminiFunctionCall{Name: setEmotionName, Args: map[string]any{"emotion": string(emotion)}},
			}}},
			geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFunctionResponse{
					Name:     setEmotionName,
					Response: map[string]any{"success": true, "emotion": string(emotion)},
				},
			}}},
		)
		parts, err = p.generate(ctx, contents, system)
		if err != nil {
			return nil, fmt.Errorf("follow-up: %w", err)
		}
		text, _, _ = readParts(parts)
	}

	result := finish(text, emotion)
	p.logger.Debug().
		Str("model", p.config.Model).
		Str("emotion", result.Emotion.String()).
		Bool("followUp", followUp).
		Dur("duration", time.Since(start)).
		Msg("Chat reply")
	return result, nil
}

// readParts extracts the last text part and the setEmotion argument.
func readParts(parts []geminiPart) (text string, emotion avatar3d.Emotion, called bool) {
	emotion = avatar3d.EmotionNeutral
	for _, part := range parts {
		if fc := part.FunctionCall; fc != nil && fc.Name == setEmotionName {
			called = true
			if s, ok := fc.Args["emotion"].(string); ok {
				emotion = avatar3d.ParseEmotion(s)
			}
		}
		if strings.TrimSpace(part.Text) != "" {
			text = part.Text
		}
	}
	return text, emotion, called
}

func (p *GeminiProvider) generate(ctx context.Context, contents []geminiContent, system *geminiContent) ([]geminiPart, error) {
	body, err := json.Marshal(geminiRequest{
		Contents:          contents,
		SystemInstruction: system,
		Tools: []geminiTool{{FunctionDeclarations: []functionDecl{{
			Name:        setEmotionName,
			Description: setEmotionDescription,
			Parameters:  emotionSchema(),
		}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: p.config.MaxTokens,
			Temperature:     p.config.Temperature,
			TopP:            0.95,
			TopK:            40,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// key goes in a header so it never lands in request logs
	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(p.config.Endpoint, "/"), p.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("gemini", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, ErrNoChoices
	}
	return out.Candidates[0].Content.Parts, nil
}
