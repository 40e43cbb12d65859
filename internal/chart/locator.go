package chart

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/config"
)

// Near-black HSV range used to find the chart border.
var (
	borderLower = gocv.NewScalar(0, 0, 0, 0)
	borderUpper = gocv.NewScalar(180, 100, 30, 0)
)

// Detector locates the chart and extracts its patch grid.
type Detector struct {
	// MinArea is the smallest border contour area considered, in pixels.
	MinArea float64
	Grid    GridSpec
	// MinPatchSize is the smallest accepted patch bounding box side.
	MinPatchSize int
	InsetX       int
	InsetY       int
}

// DetectorFromTuning builds a Detector from the tuning config.
func DetectorFromTuning(cfg *config.TuningConfig) Detector {
	insetX, insetY := cfg.GetPatchInset()
	return Detector{
		MinArea: cfg.GetMinChartArea(),
		Grid: GridSpec{
			Rows:         cfg.GetChartRows(),
			Cols:         cfg.GetChartCols(),
			RowTolerance: cfg.GetRowTolerance(),
		},
		MinPatchSize: cfg.GetPatchMinSize(),
		InsetX:       insetX,
		InsetY:       insetY,
	}
}

// Observation is one sighting of the chart.
type Observation struct {
	// Corners in TL, TR, BR, BL order, in frame coordinates.
	Corners [4]image.Point
	// Normalized is the perspective-corrected chart. Owned by the Observation.
	Normalized gocv.Mat
	Patches    []Patch
}

// Close releases the normalised image.
func (o *Observation) Close() error {
	return o.Normalized.Close()
}

// Detect locates the chart in frame and extracts its patches.
func (d Detector) Detect(frame gocv.Mat) (*Observation, error) {
	corners, normalized, err := d.Locate(frame)
	if err != nil {
		return nil, err
	}
	patches, err := d.ExtractPatches(normalized)
	if err != nil {
		normalized.Close()
		return nil, err
	}
	return &Observation{Corners: corners, Normalized: normalized, Patches: patches}, nil
}

// Locate finds the largest dark quadrilateral in frame and warps it to a
// fronto-parallel view. The caller owns the returned Mat.
func (d Detector) Locate(frame gocv.Mat) ([4]image.Point, gocv.Mat, error) {
	var corners [4]image.Point
	if frame.Empty() {
		return corners, gocv.NewMat(), fmt.Errorf("%w: empty frame", ErrChartNotFound)
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, borderLower, borderUpper, &mask)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(7, 7))
	defer kernel.Close()
	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(mask, &closed, gocv.MorphClose, kernel)
	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(closed, &opened, gocv.MorphOpen, kernel)

	contours := gocv.FindContours(opened, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best []image.Point
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area <= d.MinArea {
			continue
		}
		approx := gocv.ApproxPolyDP(contour, 0.02*gocv.ArcLength(contour, true), true)
		if approx.Size() == 4 && area > bestArea {
			bestArea = area
			best = approx.ToPoints()
		}
		approx.Close()
	}
	if best == nil {
		return corners, gocv.NewMat(), ErrChartNotFound
	}

	corners = OrderCorners([4]image.Point{best[0], best[1], best[2], best[3]})
	w, h := TargetSize(corners)
	if w < 2 || h < 2 {
		return corners, gocv.NewMat(), fmt.Errorf("%w: degenerate border %dx%d", ErrChartNotFound, w, h)
	}

	src := gocv.NewPointVectorFromPoints(corners[:])
	defer src.Close()
	dst := gocv.NewPointVectorFromPoints([]image.Point{
		{0, 0}, {w - 1, 0}, {w - 1, h - 1}, {0, h - 1},
	})
	defer dst.Close()

	transform := gocv.GetPerspectiveTransform(src, dst)
	defer transform.Close()

	warped := gocv.NewMat()
	gocv.WarpPerspective(frame, &warped, transform, image.Pt(w, h))
	return corners, warped, nil
}

// ExtractPatches finds the colour patches on a normalised chart and returns
// exactly Grid.Size() of them, or ErrPatchCountMismatch.
func (d Detector) ExtractPatches(normalized gocv.Mat) ([]Patch, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(normalized, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 200)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var found []Patch
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		approx := gocv.ApproxPolyDP(contour, 0.02*gocv.ArcLength(contour, true), true)
		if approx.Size() == 4 {
			r := gocv.BoundingRect(approx)
			if r.Dx() > d.MinPatchSize && r.Dy() > d.MinPatchSize {
				found = append(found, PatchFromRect(r))
			}
		}
		approx.Close()
	}

	return RepairGrid(InsetPatches(found, d.InsetX, d.InsetY), d.Grid)
}
