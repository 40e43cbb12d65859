package classify

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/geom"
)

func TestTorsoZone(t *testing.T) {
	zone := TorsoZone(geom.BBox{X1: 100, Y1: 200, X2: 200, Y2: 400})
	assert.Equal(t, image.Rect(130, 240, 170, 280), zone)
}

func TestShirtClassifier_Pick(t *testing.T) {
	c := &ShirtClassifier{Ranges: DefaultColorRanges, MinPixelCount: 100, MinPixelRatio: 0.15}

	assert.Equal(t, "jaune", c.pick(map[string]int{"jaune": 600, "blanc": 300}, 1000, t0))
	assert.Equal(t, "", c.pick(map[string]int{"jaune": 90}, 100, t0), "below pixel count")
	assert.Equal(t, "", c.pick(map[string]int{"jaune": 140}, 1000, t0), "below pixel ratio")
	assert.Equal(t, "", c.pick(nil, 0, t0))
}

func TestShirtClassifier_PickAppliesWeighting(t *testing.T) {
	w := NewTemporalWeighting(50*time.Second, 0.1)
	c := &ShirtClassifier{Ranges: DefaultColorRanges, MinPixelCount: 100, MinPixelRatio: 0.15, weighting: w}

	w.Observe("jaune", t0)
	// jaune 600×0.1 = 60 loses to blanc 300×1.
	assert.Equal(t, "blanc", c.pick(map[string]int{"jaune": 600, "blanc": 300}, 1000, t0.Add(time.Second)))
	// Long after, jaune wins again.
	assert.Equal(t, "jaune", c.pick(map[string]int{"jaune": 600, "blanc": 300}, 1000, t0.Add(time.Minute)))
}

func TestShirtClassifier_Classify(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	// Pure yellow shirt on the first runner, pure red on the second.
	gocv.Rectangle(&frame, image.Rect(100, 200, 200, 400), color.RGBA{255, 255, 0, 0}, -1)
	gocv.Rectangle(&frame, image.Rect(400, 200, 500, 400), color.RGBA{255, 0, 0, 0}, -1)

	c := NewShirtClassifier(config.EmptyTuningConfig(), nil)

	label, err := c.Classify(frame, geom.BBox{X1: 100, Y1: 200, X2: 200, Y2: 400}, t0)
	require.NoError(t, err)
	assert.Equal(t, "jaune", label)

	label, err = c.Classify(frame, geom.BBox{X1: 400, Y1: 200, X2: 500, Y2: 400}, t0)
	require.NoError(t, err)
	assert.Equal(t, "rouge_fonce", label)
}

func TestShirtClassifier_ZoneOutsideFrame(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()

	c := NewShirtClassifier(config.EmptyTuningConfig(), nil)
	label, err := c.Classify(frame, geom.BBox{X1: 80, Y1: 80, X2: 300, Y2: 300}, t0)
	require.NoError(t, err)
	assert.Empty(t, label)
}
