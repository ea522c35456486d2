package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhasePortraitWritesPath(t *testing.T) {
	rows := [][]float64{
		{0, 0, 1},
		{1, 1, 1},
		{2, 0, 1},
	}
	var buf bytes.Buffer
	p := PhasePortrait{XCol: 0, YCol: 1, Width: 100, Height: 50, Title: "θ vs ω <run>"}
	require.NoError(t, p.WriteSVG(&buf, rows))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `width="100" height="50"`)
	assert.Contains(t, out, "&lt;run&gt;")
	assert.Equal(t, 2, strings.Count(out, " L"))
	assert.Contains(t, out, `stroke="#00ff88"`)
}

func TestPhasePortraitSkipsBadRows(t *testing.T) {
	rows := [][]float64{
		{0, 0},
		{math.NaN(), 1},
		{1},
		{1, 1},
	}
	var buf bytes.Buffer
	require.NoError(t, PhasePortrait{XCol: 0, YCol: 1}.WriteSVG(&buf, rows))
	assert.Equal(t, 1, strings.Count(buf.String(), " L"))
}

func TestPhasePortraitNeedsTwoPoints(t *testing.T) {
	var buf bytes.Buffer
	err := PhasePortrait{XCol: 0, YCol: 3}.WriteSVG(&buf, [][]float64{{0, 1}, {1, 2}})
	assert.ErrorContains(t, err, "at least 2 points")
	assert.Zero(t, buf.Len())
}
