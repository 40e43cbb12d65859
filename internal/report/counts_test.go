package report

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCountsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "counts.png")
	err := WriteCountsPNG(path, map[string]int{"jaune": 12, "rouge_fonce": 4, "inconnu": 1}, "Run 1")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "expected PNG signature")
}

func TestWriteCountsPNG_Empty(t *testing.T) {
	err := WriteCountsPNG(filepath.Join(t.TempDir(), "counts.png"), nil, "empty")
	assert.Error(t, err)
}

func TestBarColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 230, G: 200, B: 20, A: 255}, BarColor("jaune"))
	assert.Equal(t, defaultBarColor, BarColor("inconnu"))
}
