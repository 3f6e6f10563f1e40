package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFileAndHistory(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, err := New(Config{Dir: dir, Level: "debug", Console: true, Out: &console, MaxHistory: 2})
	require.NoError(t, err)
	defer l.Close()

	log := l.Component("engine")
	log.Debug().Msg("one")
	log.Info().Msg("two")
	log.Warn().Msg("three")

	hist := l.GetHistory(0)
	require.Len(t, hist, 2)
	assert.Equal(t, "two", hist[0].Message)
	assert.Equal(t, "warn", hist[1].Level)
	assert.Len(t, l.GetHistory(1), 1)

	raw, err := os.ReadFile(l.GetLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"component":"engine"`)
	assert.Contains(t, console.String(), "three")
}

func TestLoggerLevelFilters(t *testing.T) {
	l, err := New(Config{Level: "warn"})
	require.NoError(t, err)

	var seen []string
	l.SetOnLog(func(e LogEntry) { seen = append(seen, e.Message) })

	z := l.Zerolog()
	z.Info().Msg("dropped")
	z.Error().Msg("kept")
	assert.Equal(t, []string{"kept"}, seen)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
