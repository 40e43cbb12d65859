package chart

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// renderChart draws a black-bordered 4×6 chart on a white 640×480 frame.
// The border spans (100,80)-(560,380); patches are 60×55 with 12px gaps.
func renderChart(t *testing.T) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&frame, image.Rect(100, 80, 560, 380), color.RGBA{0, 0, 0, 0}, -1)

	i := 0
	for r := 0; r < 4; r++ {
		for c := 0; c < 6; c++ {
			ref := ReferenceColors[i]
			i++
			x := 100 + 20 + c*72
			y := 80 + 20 + r*67
			// Keep patches bright enough to stand out from the border.
			fill := color.RGBA{
				R: uint8(max(ref[2], 90)),
				G: uint8(max(ref[1], 90)),
				B: uint8(max(ref[0], 90)),
			}
			gocv.Rectangle(&frame, image.Rect(x, y, x+60, y+55), fill, -1)
		}
	}
	return frame
}

func testDetector() Detector {
	return Detector{
		MinArea:      1000,
		Grid:         DefaultGridSpec(),
		MinPatchSize: 10,
		InsetX:       5,
		InsetY:       20,
	}
}

func TestLocate_FindsBorder(t *testing.T) {
	frame := renderChart(t)
	defer frame.Close()

	corners, normalized, err := testDetector().Locate(frame)
	require.NoError(t, err)
	defer normalized.Close()

	want := [4]image.Point{{100, 80}, {559, 80}, {559, 379}, {100, 379}}
	for i := range want {
		assert.InDelta(t, want[i].X, corners[i].X, 2, "corner %d x", i)
		assert.InDelta(t, want[i].Y, corners[i].Y, 2, "corner %d y", i)
	}
	assert.InDelta(t, 459, normalized.Cols(), 3)
	assert.InDelta(t, 299, normalized.Rows(), 3)
}

func TestLocate_NoChart(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, normalized, err := testDetector().Locate(frame)
	defer normalized.Close()
	assert.True(t, errors.Is(err, ErrChartNotFound))
}

func TestLocate_EmptyFrame(t *testing.T) {
	frame := gocv.NewMat()
	defer frame.Close()

	_, normalized, err := testDetector().Locate(frame)
	defer normalized.Close()
	assert.ErrorIs(t, err, ErrChartNotFound)
}

func TestDetect_ExtractsFullGrid(t *testing.T) {
	frame := renderChart(t)
	defer frame.Close()

	obs, err := testDetector().Detect(frame)
	require.NoError(t, err)
	defer obs.Close()

	require.Len(t, obs.Patches, 24)
	for _, p := range obs.Patches {
		assert.Greater(t, p.W, 0)
		assert.Greater(t, p.H, 0)
	}

	colors, err := SampleColors(obs.Normalized, obs.Patches)
	require.NoError(t, err)
	require.Len(t, colors, 24)

	// The first patch is the bottom-right one after reversal: black (52,52,52)
	// lifted to the 90 floor.
	assert.InDelta(t, 90, colors[0][0], 8)
	// The last is the top-left dark skin patch.
	assert.InDelta(t, 90, colors[23][0], 8)
	assert.InDelta(t, 115, colors[23][2], 8)
}

func TestSampleColors(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	colors, err := SampleColors(img, []Patch{{X: 5, Y: 5, W: 10, H: 10}, {X: 95, Y: 95, W: 20, H: 20}})
	require.NoError(t, err)
	assert.Equal(t, []BGR{{10, 20, 30}, {10, 20, 30}}, colors)
}

func TestSampleColors_OutsideImage(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 50, 50, gocv.MatTypeCV8UC3)
	defer img.Close()

	_, err := SampleColors(img, []Patch{{X: 60, Y: 60, W: 5, H: 5}})
	assert.Error(t, err)
}

func TestSampleColors_RejectsInvertedPatch(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	_, err := SampleColors(img, []Patch{Patch{X: 10, Y: 40, W: 40, H: 30}.Inset(5, 20)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no area")
}
