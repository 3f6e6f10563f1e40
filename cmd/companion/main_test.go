package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/qmuntal/gltf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
	"github.com/normanking/cortexcompanion/internal/chat"
	"github.com/normanking/cortexcompanion/internal/companion"
	"github.com/normanking/cortexcompanion/internal/config"
	"github.com/normanking/cortexcompanion/internal/tts"
)

type fakeSession struct {
	sent     []string
	switched []string
	stopped  int
	err      error
}

func (f *fakeSession) Send(_ context.Context, text string) (*companion.Reply, error) {
	f.sent = append(f.sent, text)
	if f.err != nil {
		return nil, f.err
	}
	return &companion.Reply{Text: "hey " + text, Emotion: avatar3d.EmotionHappy, Credits: 4}, nil
}

func (f *fakeSession) SwitchCharacter(id string) error {
	if id != "jessica" {
		return companion.ErrUnknownCharacter
	}
	f.switched = append(f.switched, id)
	return nil
}

func (f *fakeSession) Stop() { f.stopped++ }

type fakeBalance int

func (b fakeBalance) Balance(context.Context, string) (int, error) { return int(b), nil }

func runPrompt(t *testing.T, s *fakeSession, input ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	p := &prompt{session: s, ledger: fakeBalance(7), userID: "u1", out: &out}

	lines := make(chan string, len(input))
	for _, l := range input {
		lines <- l
	}
	close(lines)

	err := p.run(context.Background(), lines)
	return out.String(), err
}

func TestPromptSendsMessages(t *testing.T) {
	s := &fakeSession{}
	out, err := runPrompt(t, s, "  hello ", "", "/credits")
	require.NoError(t, err)

	assert.Equal(t, []string{"hello"}, s.sent)
	assert.Contains(t, out, "[happy] hey hello")
	assert.Contains(t, out, "7 credits")
}

func TestPromptCommands(t *testing.T) {
	s := &fakeSession{}
	out, err := runPrompt(t, s, "/switch jessica", "/switch nobody", "/stop", "/dance", "/quit", "never sent")
	assert.ErrorIs(t, err, errQuit)

	assert.Equal(t, []string{"jessica"}, s.switched)
	assert.Equal(t, 1, s.stopped)
	assert.Empty(t, s.sent)
	assert.Contains(t, out, "switched to jessica")
	assert.Contains(t, out, "unknown character")
	assert.Contains(t, out, "unknown command /dance")
}

func TestPromptReportsSendErrors(t *testing.T) {
	s := &fakeSession{err: companion.ErrNoCredits}
	out, err := runPrompt(t, s, "hi", "again")
	require.NoError(t, err)
	assert.Len(t, s.sent, 2)
	assert.Equal(t, 2, strings.Count(out, "no credits left"))
}

func TestPromptStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &prompt{session: &fakeSession{}, out: &bytes.Buffer{}}

	done := make(chan error, 1)
	go func() { done <- p.run(ctx, make(chan string)) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("prompt did not stop")
	}
}

func TestReadLines(t *testing.T) {
	var got []string
	for l := range readLines(context.Background(), strings.NewReader("a\nb\n")) {
		got = append(got, l)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestEngineConfigFromAvatar(t *testing.T) {
	a := config.DefaultConfig().Avatar
	a.Blink = true

	ec := engineConfig(a)
	assert.InDelta(t, 0.1, ec.ExpressionRate, 1e-6)
	assert.InDelta(t, 0.2, ec.VisemeRate, 1e-6)
	assert.InDelta(t, 0.15, ec.DecayRate, 1e-6)
	assert.InDelta(t, 1.0, ec.ExpressionScale, 1e-6)
	assert.Equal(t, 150.0, ec.MaxCharDurationMs)
	assert.Equal(t, 500*time.Millisecond, ec.FadeIn)
	assert.Equal(t, 300*time.Millisecond, ec.FadeOut)
	assert.True(t, ec.Blink)
}

func TestLoadRigFallsBack(t *testing.T) {
	a := config.DefaultConfig().Avatar
	rig := loadRig(a, zerolog.Nop())
	assert.Equal(t, avatar3d.DefaultRig().Head.Name, rig.Head.Name)

	a.ModelPath = filepath.Join(t.TempDir(), "missing.glb")
	rig = loadRig(a, zerolog.Nop())
	assert.Equal(t, avatar3d.DefaultRig().Head.Name, rig.Head.Name)

	a.Clips = map[string]string{"idle": filepath.Join(t.TempDir(), "missing.glb")}
	lib := loadClips(a, zerolog.Nop())
	assert.Equal(t, avatar3d.DefaultClipLibrary(), lib)
}

func TestProvidersFollowConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "inworld", newTTSProvider(cfg.TTS, zerolog.Nop()).Name())
	cfg.TTS.Provider = "elevenlabs"
	assert.IsType(t, &tts.ElevenLabsProvider{}, newTTSProvider(cfg.TTS, zerolog.Nop()))

	assert.IsType(t, &chat.OpenAIProvider{}, newChatProvider(cfg.Chat, zerolog.Nop()))
	cfg.Chat.Provider = "gemini"
	assert.IsType(t, &chat.GeminiProvider{}, newChatProvider(cfg.Chat, zerolog.Nop()))
}

func TestPrintDocument(t *testing.T) {
	doc := &gltf.Document{Meshes: []*gltf.Mesh{
		{Name: "Body"},
		{Name: "Wolf3D_Head", Extras: map[string]interface{}{
			"targetNames": []interface{}{"viseme_aa", "mouthSmileLeft"},
		}},
	}}

	var out bytes.Buffer
	printDocument(&out, doc)
	assert.Contains(t, out.String(), "Wolf3D_Head: 2 channels")
	assert.Contains(t, out.String(), "viseme_aa mouthSmileLeft")
	assert.Contains(t, out.String(), "missing:")
	assert.NotContains(t, out.String(), "Body")

	out.Reset()
	printDocument(&out, &gltf.Document{})
	assert.Equal(t, "no morph targets\n", out.String())
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, loadEnv(""))
	assert.NoError(t, loadEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("COMPANION_TEST_KEY=from-dotenv\n"), 0600))
	t.Setenv("COMPANION_TEST_KEY", "")
	os.Unsetenv("COMPANION_TEST_KEY")

	require.NoError(t, loadEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("COMPANION_TEST_KEY"))
}

var _ sender = (*companion.Session)(nil)
