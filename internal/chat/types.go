// Package chat talks to the language model that writes the companion's replies
// and picks the emotion to show with each one.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
)

// FallbackText is spoken when the model returns no text.
const FallbackText = "Hmm, I'm not sure what to say to that."

const maxErrorBody = 4096

var (
	ErrNotConfigured = errors.New("chat provider not configured")
	ErrNoChoices     = errors.New("no choices in response")
)

// Role of a message in the conversation
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request carries the persona prompt, prior turns and the new user text.
type Request struct {
	System  string
	History []Message
	Text    string
}

// Response is the reply text plus the emotion the model chose.
type Response struct {
	Text    string
	Emotion avatar3d.Emotion
}

// Provider produces replies.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// EmotionInstructions is appended to every persona prompt.
const EmotionInstructions = `IMPORTANT: You MUST use the setEmotion tool before every response to express how you're feeling. Choose the emotion that best matches your response:
- happy: feeling good, pleased, amused by something
- sad: disappointed, upset, empathizing with bad news
- confused: puzzled, uncertain, don't understand something
- angry: frustrated, annoyed, irritated
- laughing: finding something funny, reacting to humor
- dancing: feeling like celebrating with a dance, party mood
- neutral: calm, normal conversation
- flirty: playful, teasing, inviting
- loving: warm, affectionate, adoring

Keep responses to 1-2 short sentences.`

const (
	setEmotionName        = "setEmotion"
	setEmotionDescription = "Set your emotional expression before responding. MUST be called before every response."
)

// emotionSchema is the JSON schema of the setEmotion arguments.
func emotionSchema() map[string]any {
	names := make([]string, len(avatar3d.AllEmotions))
	for i, e := range avatar3d.AllEmotions {
		names[i] = string(e)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"emotion": map[string]any{
				"type":        "string",
				"enum":        names,
				"description": "The emotion to express",
			},
		},
		"required": []string{"emotion"},
	}
}

func systemPrompt(persona string) string {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		return EmotionInstructions
	}
	return persona + "\n\n" + EmotionInstructions
}

func finish(text string, emotion avatar3d.Emotion) *Response {
	text = strings.TrimSpace(text)
	if text == "" {
		text = FallbackText
	}
	if !emotion.Valid() {
		emotion = avatar3d.EmotionNeutral
	}
	return &Response{Text: text, Emotion: emotion}
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(b)
}

func statusError(provider string, status int, body string) error {
	return fmt.Errorf("%s API error %d: %s", provider, status, body)
}
