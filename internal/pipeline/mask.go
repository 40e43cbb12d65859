package pipeline

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/tracking"
)

// Mask is the detection zone. Detections whose reference point falls on a
// zero pixel are dropped before tracking.
type Mask struct {
	width, height int
	pix           []byte
}

// LoadMask reads a grayscale mask image and scales it to width×height.
func LoadMask(path string, width, height int) (*Mask, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("failed to read mask %s", path)
	}
	return NewMask(img, width, height)
}

// NewMask builds a Mask from a single-channel Mat.
func NewMask(img gocv.Mat, width, height int) (*Mask, error) {
	if img.Channels() != 1 {
		return nil, fmt.Errorf("mask must be single channel, got %d", img.Channels())
	}
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(img, &scaled, image.Pt(width, height), 0, 0, gocv.InterpolationNearestNeighbor)
	return &Mask{width: width, height: height, pix: scaled.ToBytes()}, nil
}

// Contains reports whether (x, y) is inside the zone. Points off the frame
// are outside.
func (m *Mask) Contains(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.pix[y*m.width+x] != 0
}

// Filter returns the detections inside the zone. A nil Mask keeps all.
func (m *Mask) Filter(dets []tracking.Detection) []tracking.Detection {
	if m == nil {
		return dets
	}
	out := dets[:0:0]
	for _, d := range dets {
		p := d.BBox.BottomCenter()
		x, y := clamp(int(p.X), m.width), clamp(int(p.Y), m.height)
		if m.Contains(x, y) {
			out = append(out, d)
		}
	}
	return out
}

// clamp keeps boxes touching the frame edge on the frame.
func clamp(v, size int) int {
	if v >= size {
		return size - 1
	}
	if v < 0 {
		return 0
	}
	return v
}
