package chart

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halfImage(left, right color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	return img
}

func TestFingerprint_SameImage(t *testing.T) {
	img := halfImage(color.RGBA{200, 40, 40, 255}, color.RGBA{40, 40, 200, 255})
	a := FingerprintImage(img)
	b := FingerprintImage(img)

	require.Len(t, a, 48)
	assert.InDelta(t, 0, a.Distance(b), 1e-12)
	assert.True(t, a.Matches(b, 0.25))
}

func TestFingerprint_DifferentLighting(t *testing.T) {
	bright := FingerprintImage(halfImage(color.RGBA{220, 220, 220, 255}, color.RGBA{250, 250, 250, 255}))
	dark := FingerprintImage(halfImage(color.RGBA{30, 30, 30, 255}, color.RGBA{60, 60, 60, 255}))

	assert.Greater(t, bright.Distance(dark), 0.25)
	assert.False(t, bright.Matches(dark, 0.25))
}

func TestFingerprint_LengthMismatch(t *testing.T) {
	a := Fingerprint{1, 2, 3}
	assert.True(t, math.IsInf(a.Distance(Fingerprint{1, 2}), 1))
	assert.True(t, math.IsInf(Fingerprint(nil).Distance(nil), 1))
}
