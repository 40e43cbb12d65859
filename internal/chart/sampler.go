package chart

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// SampleColors returns the mean BGR colour of each patch, in patch order.
// Patches are clipped to the image; a patch with no area, before or after
// clipping, is an error.
func SampleColors(img gocv.Mat, patches []Patch) ([]BGR, error) {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	colors := make([]BGR, 0, len(patches))
	for i, p := range patches {
		if p.Empty() {
			return nil, fmt.Errorf("patch %d has no area: %dx%d", i, p.W, p.H)
		}
		r := p.Rect().Intersect(bounds)
		if r.Empty() {
			return nil, fmt.Errorf("patch %d %v lies outside the %dx%d chart image", i, p.Rect(), img.Cols(), img.Rows())
		}
		roi := img.Region(r)
		mean := roi.Mean()
		roi.Close()
		colors = append(colors, BGR{mean.Val1, mean.Val2, mean.Val3})
	}
	return colors, nil
}
