package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
)

func TestOpenAIChatReadsToolCall(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"model": "m",
			"choices": [{
				"message": {
					"content": "That is wonderful!",
					"tool_calls": [{"function": {"name": "setEmotion", "arguments": "{\"emotion\":\"Happy\"}"}}]
				}
			}]
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(zerolog.Nop(), OpenAIConfig{BaseURL: srv.URL, APIKey: "key"})
	resp, err := p.Chat(context.Background(), &Request{
		System:  "You are Luna.",
		History: []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hey"}},
		Text:    "I got the job",
	})
	require.NoError(t, err)

	assert.Equal(t, "That is wonderful!", resp.Text)
	assert.Equal(t, avatar3d.EmotionHappy, resp.Emotion)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "You are Luna.")
	assert.Contains(t, got.Messages[0].Content, "setEmotion")
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "I got the job", got.Messages[3].Content)
	assert.Equal(t, 150, got.MaxTokens)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "setEmotion", got.Tools[0].Function.Name)
}

func TestOpenAIChatFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  ","tool_calls":[{"function":{"name":"setEmotion","arguments":"{\"emotion\":\"smug\"}"}}]}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(zerolog.Nop(), OpenAIConfig{BaseURL: srv.URL, APIKey: "key"})
	resp, err := p.Chat(context.Background(), &Request{Text: "?"})
	require.NoError(t, err)
	assert.Equal(t, FallbackText, resp.Text)
	assert.Equal(t, avatar3d.EmotionNeutral, resp.Emotion)
}

func TestOpenAIChatErrors(t *testing.T) {
	_, err := NewOpenAIProvider(zerolog.Nop(), OpenAIConfig{}).Chat(context.Background(), &Request{Text: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err = NewOpenAIProvider(zerolog.Nop(), OpenAIConfig{BaseURL: srv.URL, APIKey: "k"}).Chat(context.Background(), &Request{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestGeminiChatFollowUpAfterFunctionCall(t *testing.T) {
	var calls atomic.Int32
	var second geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gkey", r.Header.Get("x-goog-api-key"))

		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"setEmotion","args":{"emotion":"sad"}}}]}}]}`))
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&second))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"I'm so sorry."}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(zerolog.Nop(), GeminiConfig{Endpoint: srv.URL, APIKey: "gkey"})
	resp, err := p.Chat(context.Background(), &Request{
		History: []Message{{Role: RoleAssistant, Content: "hello"}},
		Text:    "my cat died",
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "I'm so sorry.", resp.Text)
	assert.Equal(t, avatar3d.EmotionSad, resp.Emotion)

	require.Len(t, second.Contents, 4)
	assert.Equal(t, "model", second.Contents[0].Role)
	require.NotNil(t, second.Contents[2].Parts[0].FunctionCall)
	require.NotNil(t, second.Contents[3].Parts[0].FunctionResponse)
	assert.Equal(t, "sad", second.Contents[3].Parts[0].FunctionResponse.Response["emotion"])
}

func TestGeminiChatSingleCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[
			{"functionCall":{"name":"setEmotion","args":{"emotion":"laughing"}}},
			{"text":"Ha, good one!"}
		]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(zerolog.Nop(), GeminiConfig{Endpoint: srv.URL, APIKey: "k"})
	resp, err := p.Chat(context.Background(), &Request{Text: "joke"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, avatar3d.EmotionLaughing, resp.Emotion)
	assert.Equal(t, "Ha, good one!", resp.Text)
}

func TestGeminiChatNoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[]}}]}`))
	}))
	defer srv.Close()

	resp, err := NewGeminiProvider(zerolog.Nop(), GeminiConfig{Endpoint: srv.URL, APIKey: "k"}).
		Chat(context.Background(), &Request{Text: "..."})
	require.NoError(t, err)
	assert.Equal(t, FallbackText, resp.Text)
	assert.Equal(t, avatar3d.EmotionNeutral, resp.Emotion)
}

func TestEmotionSchemaListsEveryEmotion(t *testing.T) {
	props := emotionSchema()["properties"].(map[string]any)
	enum := props["emotion"].(map[string]any)["enum"].([]string)
	assert.Len(t, enum, len(avatar3d.AllEmotions))
	assert.Contains(t, enum, "flirty")
}
