package chart

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
	"github.com/rivo/duplo/haar"
	"gocv.io/x/gocv"
)

const (
	fingerprintScale = 32
	fingerprintBlock = 4
)

// Fingerprint is a coarse wavelet signature of a normalised chart image.
// Two sightings of the same chart under the same lighting have a small
// Distance, so calibration can be reused instead of refitted.
type Fingerprint []float64

// FingerprintImage computes the signature of img.
func FingerprintImage(img image.Image) Fingerprint {
	scaled := resize.Resize(fingerprintScale, fingerprintScale, img, resize.Bilinear)
	matrix := haar.Transform(scaled)

	fp := make(Fingerprint, 0, fingerprintBlock*fingerprintBlock*haar.ColourChannels)
	for y := 0; y < fingerprintBlock; y++ {
		for x := 0; x < fingerprintBlock; x++ {
			coef := matrix.Coefs[y*int(matrix.Width)+x]
			for c := 0; c < haar.ColourChannels; c++ {
				fp = append(fp, coef[c]/fingerprintScale)
			}
		}
	}
	return fp
}

// FingerprintMat computes the signature of a BGR chart image.
func FingerprintMat(m gocv.Mat) (Fingerprint, error) {
	if m.Empty() {
		return nil, fmt.Errorf("cannot fingerprint an empty image")
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert chart image: %w", err)
	}
	return FingerprintImage(img), nil
}

// Distance is the Euclidean distance between two fingerprints. Fingerprints
// of different lengths are infinitely far apart.
func (f Fingerprint) Distance(other Fingerprint) float64 {
	if len(f) != len(other) || len(f) == 0 {
		return math.Inf(1)
	}
	sum := 0.0
	for i := range f {
		d := f[i] - other[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Matches reports whether other is within tolerance of f.
func (f Fingerprint) Matches(other Fingerprint, tolerance float64) bool {
	return f.Distance(other) <= tolerance
}
