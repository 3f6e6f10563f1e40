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
	DefaultOpenAIBaseURL = "https://api.deepinfra.com/v1/openai"
	DefaultOpenAIModel   = "cognitivecomputations/dolphin-2.6-mixtral-8x7b"
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAIProvider calls /chat/completions and reads the emotion from a
// setEmotion tool call.
type OpenAIProvider struct {
	logger zerolog.Logger
	config OpenAIConfig
	client *http.Client
}

func NewOpenAIProvider(logger zerolog.Logger, cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		logger: logger.With().Str("provider", "openai-chat").Logger(),
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiTool struct {
	Type     string       `json:"type"`
	Function functionDecl `json:"function"`
}

type functionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Tools       []openaiTool    `json:"tools,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type emotionArgs struct {
	Emotion string `json:"emotion"`
}

func (p *OpenAIProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNotConfigured)
	}
	start := time.Now()

	messages := make([]openaiMessage, 0, len(req.History)+2)
	messages = append(messages, openaiMessage{Role: "system", Content: systemPrompt(req.System)})
	for _, m := range req.History {
		messages = append(messages, openaiMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, openaiMessage{Role: string(RoleUser), Content: req.Text})

	body, err := json.Marshal(openaiRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		Tools: []openaiTool{{
			Type: "function",
			Function: functionDecl{
				Name:        setEmotionName,
				Description: setEmotionDescription,
				Parameters:  emotionSchema(),
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("openai", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrNoChoices
	}

	msg := out.Choices[0].Message
	emotion := avatar3d.EmotionNeutral
	for _, call := range msg.ToolCalls {
		if call.Function.Name != setEmotionName {
			continue
		}
		var args emotionArgs
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			p.logger.Warn().Err(err).Str("arguments", call.Function.Arguments).Msg("Bad setEmotion arguments")
			continue
		}
		emotion = avatar3d.ParseEmotion(args.Emotion)
	}

	result := finish(msg.Content, emotion)
	p.logger.Debug().
		Str("model", out.Model).
		Str("emotion", result.Emotion.String()).
		Int("chars", len(result.Text)).
		Dur("duration", time.Since(start)).
		Msg("Chat reply")
	return result, nil
}
