package classify

import (
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/geom"
)

// HSVBand is an inclusive OpenCV HSV range (H in 0-180).
type HSVBand struct {
	Lower [3]float64
	Upper [3]float64
}

// ColorRange maps a label to one or more HSV bands. Pixels inside any band
// count towards the label.
type ColorRange struct {
	Label string
	Bands []HSVBand
}

// DefaultColorRanges are the shirt colours recognised out of the box. Red
// wraps around the hue axis and so needs two bands.
var DefaultColorRanges = []ColorRange{
	{"noir", []HSVBand{{[3]float64{0, 0, 0}, [3]float64{180, 255, 50}}}},
	{"blanc", []HSVBand{{[3]float64{0, 0, 200}, [3]float64{180, 30, 255}}}},
	{"rouge_fonce", []HSVBand{
		{[3]float64{0, 50, 50}, [3]float64{10, 255, 255}},
		{[3]float64{160, 50, 50}, [3]float64{180, 255, 255}},
	}},
	{"bleu_fonce", []HSVBand{{[3]float64{100, 50, 50}, [3]float64{130, 255, 120}}}},
	{"bleu_clair", []HSVBand{{[3]float64{100, 50, 121}, [3]float64{130, 255, 255}}}},
	{"vert_fonce", []HSVBand{{[3]float64{35, 50, 50}, [3]float64{85, 255, 255}}}},
	{"rose", []HSVBand{{[3]float64{140, 50, 50}, [3]float64{170, 255, 255}}}},
	{"jaune", []HSVBand{{[3]float64{20, 100, 100}, [3]float64{40, 255, 255}}}},
	{"vert_clair", []HSVBand{{[3]float64{40, 50, 50}, [3]float64{80, 255, 255}}}},
}

// TorsoZone returns the chest band of a person box: the middle 40% of its
// width, from 20% to 40% of its height.
func TorsoZone(b geom.BBox) image.Rectangle {
	w, h := b.Width(), b.Height()
	return image.Rect(
		int(b.X1+w*0.30), int(b.Y1+h*0.20),
		int(b.X1+w*0.70), int(b.Y1+h*0.40),
	)
}

// ShirtClassifier labels a person by the dominant HSV colour range of the
// torso zone.
type ShirtClassifier struct {
	Ranges        []ColorRange
	MinPixelCount int
	MinPixelRatio float64

	weighting *TemporalWeighting
}

// NewShirtClassifier creates a classifier using DefaultColorRanges.
func NewShirtClassifier(cfg *config.TuningConfig, w *TemporalWeighting) *ShirtClassifier {
	return &ShirtClassifier{
		Ranges:        DefaultColorRanges,
		MinPixelCount: cfg.GetMinPixelCount(),
		MinPixelRatio: cfg.GetMinPixelRatio(),
		weighting:     w,
	}
}

// Classify returns the shirt label for the person in bbox, or "" when the
// torso zone is outside the frame or no colour is present strongly enough.
func (c *ShirtClassifier) Classify(frame gocv.Mat, bbox geom.BBox, now time.Time) (string, error) {
	zone := TorsoZone(bbox)
	if zone.Empty() || !zone.In(image.Rect(0, 0, frame.Cols(), frame.Rows())) {
		return "", nil
	}

	roi := frame.Region(zone)
	defer roi.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(roi, &hsv, gocv.ColorBGRToHSV)

	counts := c.PixelCounts(hsv)
	return c.pick(counts, zone.Dx()*zone.Dy(), now), nil
}

// PixelCounts returns, per label, how many pixels of an HSV image fall in
// the label's bands.
func (c *ShirtClassifier) PixelCounts(hsv gocv.Mat) map[string]int {
	counts := make(map[string]int, len(c.Ranges))
	for _, r := range c.Ranges {
		mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8U)
		band := gocv.NewMat()
		for _, b := range r.Bands {
			gocv.InRangeWithScalar(hsv,
				gocv.NewScalar(b.Lower[0], b.Lower[1], b.Lower[2], 0),
				gocv.NewScalar(b.Upper[0], b.Upper[1], b.Upper[2], 0),
				&band)
			gocv.BitwiseOr(mask, band, &mask)
		}
		counts[r.Label] = gocv.CountNonZero(mask)
		band.Close()
		mask.Close()
	}
	return counts
}

// pick applies the temporal weights and thresholds. Ranges earlier in the
// list win ties.
func (c *ShirtClassifier) pick(counts map[string]int, total int, now time.Time) string {
	if total <= 0 {
		return ""
	}
	best, bestScore := "", 0.0
	for _, r := range c.Ranges {
		n := counts[r.Label]
		if n < c.MinPixelCount || float64(n)/float64(total) < c.MinPixelRatio {
			continue
		}
		score := float64(n)
		if c.weighting != nil {
			score *= c.weighting.Weight(r.Label, now)
		}
		if score > bestScore {
			best, bestScore = r.Label, score
		}
	}
	return best
}
