package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"chessroom/internal/server/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestParseFEN(t *testing.T) {
	b, err := ParseFEN(startFEN)
	require.NoError(t, err)
	assert.Equal(t, core.SideA, b.Turn())
	assert.Equal(t, byte('K'), b.PieceAt("e1"))
	assert.Equal(t, byte('q'), b.PieceAt("d8"))
	assert.Zero(t, b.PieceAt("e4"))
	assert.Zero(t, b.PieceAt("z9"))

	for _, bad := range []string{
		"",
		"8/8/8/8/8/8/8 w - - 0 1",
		"9/8/8/8/8/8/8/8 w - - 0 1",
		"8/8/8/8/8/8/8/8 x - - 0 1",
	} {
		_, err := ParseFEN(bad)
		assert.Error(t, err, bad)
	}
}

func TestRenderOrientation(t *testing.T) {
	b, err := ParseFEN(startFEN)
	require.NoError(t, err)

	var white, black bytes.Buffer
	b.Render(&white, core.SideA)
	b.Render(&black, core.SideB)

	whiteLines := strings.Split(white.String(), "\n")
	blackLines := strings.Split(black.String(), "\n")
	assert.Contains(t, whiteLines[0], "a b c d e f g h")
	assert.Contains(t, blackLines[0], "h g f e d c b a")
	assert.Contains(t, whiteLines[1], "r")
	assert.NotContains(t, whiteLines[1], "R")
	assert.Contains(t, blackLines[1], "R")
	assert.NotContains(t, blackLines[1], "r")
}

func TestClock(t *testing.T) {
	assert.Equal(t, "8:00", Clock(8*time.Minute))
	assert.Equal(t, "0:03", Clock(2600*time.Millisecond))
	assert.Equal(t, "0:00", Clock(-time.Second))
	assert.Contains(t, Timers(core.Timers{White: time.Minute, Black: 2 * time.Minute}, core.SideB), "*Black 2:00")
}
