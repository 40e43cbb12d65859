package classify

import (
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/geom"
)

const digitChars = "0123456789"

// NumberReader reads bib numbers with Tesseract. It is not safe for
// concurrent use.
type NumberReader struct {
	client        *gosseract.Client
	minConfidence float64
	expansion     float64
}

// NewNumberReader creates a reader restricted to digits.
func NewNumberReader(cfg *config.TuningConfig) (*NumberReader, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetWhitelist(digitChars); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR page mode: %w", err)
	}
	return &NumberReader{
		client:        client,
		minConfidence: cfg.GetMinNumberConfidence(),
		expansion:     cfg.GetROIExpansion(),
	}, nil
}

// Close releases the Tesseract client.
func (r *NumberReader) Close() error {
	return r.client.Close()
}

// Read returns the bib number inside bbox, or "" when none is legible.
func (r *NumberReader) Read(frame gocv.Mat, bbox geom.BBox) (string, error) {
	zone := ExpandROI(bbox, r.expansion, frame.Cols(), frame.Rows())
	if zone.Empty() {
		return "", nil
	}

	roi := frame.Region(zone)
	defer roi.Close()

	binary := PreprocessForOCR(roi)
	defer binary.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, binary)
	if err != nil {
		return "", fmt.Errorf("failed to encode bib region: %w", err)
	}
	defer buf.Close()

	if err := r.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", fmt.Errorf("failed to set OCR image: %w", err)
	}
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return pickNumber(boxes, r.minConfidence), nil
}

// ExpandROI grows bbox by ratio of its size on every side and clips it to a
// width×height frame.
func ExpandROI(b geom.BBox, ratio float64, width, height int) image.Rectangle {
	dw := int(b.Width() * ratio)
	dh := int(b.Height() * ratio)
	r := image.Rect(int(b.X1)-dw, int(b.Y1)-dh, int(b.X2)+dw, int(b.Y2)+dh)
	return r.Intersect(image.Rect(0, 0, width, height))
}

// PreprocessForOCR turns a BGR region into a clean binary image: grey,
// contrast-limited equalisation, inverted adaptive threshold and a small
// closing. The caller owns the result.
func PreprocessForOCR(roi gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)

	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
	defer clahe.Close()
	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe.Apply(gray, &equalized)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.AdaptiveThreshold(equalized, &binary, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinaryInv, 11, 2)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	closed := gocv.NewMat()
	gocv.MorphologyEx(binary, &closed, gocv.MorphClose, kernel)
	return closed
}

// pickNumber returns the first word made only of digits whose confidence,
// scaled to [0,1], reaches minConfidence.
func pickNumber(boxes []gosseract.BoundingBox, minConfidence float64) string {
	for _, b := range boxes {
		if b.Word == "" || !isDigits(b.Word) {
			continue
		}
		if b.Confidence/100 >= minConfidence {
			return b.Word
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
