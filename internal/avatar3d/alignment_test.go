package avatar3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignmentVisemeAt(t *testing.T) {
	a := Alignment{
		{Character: "H", StartMs: 0, EndMs: 80},
		{Character: "I", StartMs: 80, EndMs: 160},
	}

	v, ok := a.VisemeAt(40, DefaultMaxCharDurationMs)
	require.True(t, ok)
	assert.Equal(t, VisemeE, v)

	v, ok = a.VisemeAt(120, DefaultMaxCharDurationMs)
	require.True(t, ok)
	assert.Equal(t, VisemeI, v)

	_, ok = a.VisemeAt(200, DefaultMaxCharDurationMs)
	assert.False(t, ok)
}

func TestAlignmentCapsLongCharacters(t *testing.T) {
	a := Alignment{{Character: "O", StartMs: 0, EndMs: 1000}}

	_, ok := a.VisemeAt(149, 150)
	assert.True(t, ok)
	_, ok = a.VisemeAt(150, 150)
	assert.False(t, ok)
	_, ok = a.VisemeAt(500, 150)
	assert.False(t, ok)
}

func TestAlignmentFirstMatchWins(t *testing.T) {
	a := Alignment{
		{Character: "M", StartMs: 0, EndMs: 100},
		{Character: "A", StartMs: 50, EndMs: 150},
	}
	c, i, ok := a.ActiveAt(60, 0)
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, "M", c.Character)
}

func TestAlignmentGapsAndWhitespace(t *testing.T) {
	a := Alignment{
		{Character: "A", StartMs: 0, EndMs: 50},
		{Character: " ", StartMs: 100, EndMs: 150},
	}
	_, ok := a.VisemeAt(75, 150)
	assert.False(t, ok, "gap")
	_, ok = a.VisemeAt(120, 150)
	assert.False(t, ok, "space")

	var empty Alignment
	_, ok = empty.VisemeAt(0, 150)
	assert.False(t, ok)
}

func TestAlignmentFromSeconds(t *testing.T) {
	a := AlignmentFromSeconds(
		[]string{"H", "i", "!"},
		[]float64{0, 0.1},
		[]float64{0.1},
		0.05,
	)
	require.Len(t, a, 3)
	assert.Equal(t, AlignmentChar{Character: "H", StartMs: 0, EndMs: 100}, a[0])
	assert.InDelta(t, 100, a[1].StartMs, 1e-9)
	assert.InDelta(t, 150, a[1].EndMs, 1e-9)
	assert.InDelta(t, 0, a[2].StartMs, 1e-9)
	assert.InDelta(t, 50, a[2].EndMs, 1e-9)
	assert.InDelta(t, 150, a.DurationMs(), 1e-9)
}
