package chart

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Patch is one colour square on the normalised chart, as x, y, width, height.
type Patch struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the patch to an image.Rectangle.
func (p Patch) Rect() image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+p.W, p.Y+p.H)
}

// PatchFromRect converts an image.Rectangle to a Patch.
func PatchFromRect(r image.Rectangle) Patch {
	return Patch{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Inset shrinks the patch by dx on the left and right and by dy on the top
// and bottom, keeping samples clear of the printed grid lines.
func (p Patch) Inset(dx, dy int) Patch {
	return Patch{X: p.X + dx, Y: p.Y + dy, W: p.W - 2*dx, H: p.H - 2*dy}
}

// Empty reports whether the patch covers no pixels.
func (p Patch) Empty() bool {
	return p.W <= 0 || p.H <= 0
}

// InsetPatches insets every patch and drops those left with no area, so a
// chart too small for the margins fails the grid count instead of being
// sampled from the wrong pixels.
func InsetPatches(patches []Patch, dx, dy int) []Patch {
	out := make([]Patch, 0, len(patches))
	for _, p := range patches {
		if in := p.Inset(dx, dy); !in.Empty() {
			out = append(out, in)
		}
	}
	return out
}

// GridSpec describes the expected patch layout.
type GridSpec struct {
	Rows int
	Cols int

	// RowTolerance is the largest y step between consecutive patches, sorted
	// by y, that still counts as the same row.
	RowTolerance int
}

// DefaultGridSpec is the 4×6 ColorChecker layout.
func DefaultGridSpec() GridSpec {
	return GridSpec{Rows: 4, Cols: 6, RowTolerance: 20}
}

// Size returns Rows×Cols.
func (g GridSpec) Size() int {
	return g.Rows * g.Cols
}

// GroupRows sorts patches by (y, x) and splits them into rows. A new row
// starts whenever the y step from the previous patch reaches the tolerance.
// Each returned row is sorted by x.
func GroupRows(patches []Patch, tolerance int) [][]Patch {
	sorted := make([]Patch, len(patches))
	copy(sorted, patches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows [][]Patch
	var current []Patch
	for i, p := range sorted {
		if i > 0 && absInt(p.Y-sorted[i-1].Y) >= tolerance {
			rows = append(rows, current)
			current = nil
		}
		current = append(current, p)
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}

	for _, row := range rows {
		sortByX(row)
	}
	return rows
}

// FillRow synthesises the patches missing from a short row. Columns are
// assumed evenly spaced between the first and last patch found; an expected
// column with no existing patch within half the mean patch width gets a
// new patch of the mean size on the row's first y.
func FillRow(row []Patch, cols int) []Patch {
	if len(row) == 0 || len(row) >= cols || cols < 2 {
		return row
	}

	var sumW, sumH float64
	for _, p := range row {
		sumW += float64(p.W)
		sumH += float64(p.H)
	}
	avgW := sumW / float64(len(row))
	avgH := sumH / float64(len(row))

	first, last := row[0], row[len(row)-1]
	spacing := float64(last.X-first.X) / float64(cols-1)

	out := make([]Patch, len(row), cols)
	copy(out, row)
	for i := 0; i < cols; i++ {
		expected := float64(first.X) + float64(i)*spacing
		found := false
		for _, p := range row {
			if math.Abs(expected-float64(p.X)) < avgW/2 {
				found = true
				break
			}
		}
		if !found {
			out = append(out, Patch{X: int(expected), Y: first.Y, W: int(avgW), H: int(avgH)})
		}
	}
	sortByX(out)
	return out
}

// RepairGrid groups detected patches into rows, fills short rows and returns
// exactly layout.Size() patches in row-major order, reversed. It fails with
// ErrPatchCountMismatch when the result still does not match the layout,
// for example when a whole row is missing.
func RepairGrid(patches []Patch, layout GridSpec) ([]Patch, error) {
	rows := GroupRows(patches, layout.RowTolerance)

	out := make([]Patch, 0, layout.Size())
	for _, row := range rows {
		if len(row) < layout.Cols {
			row = FillRow(row, layout.Cols)
		}
		out = append(out, row...)
	}

	if len(rows) != layout.Rows || len(out) != layout.Size() {
		return nil, fmt.Errorf("%w: found %d patches in %d rows, want %dx%d",
			ErrPatchCountMismatch, len(out), len(rows), layout.Rows, layout.Cols)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func sortByX(row []Patch) {
	sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
