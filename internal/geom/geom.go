// Package geom holds the small amount of plane geometry shared by the
// tracker and the crossing detector. Image coordinates are used throughout:
// x grows to the right and y grows downwards.
package geom

import (
	"image"
	"math"
)

// Point is a position in image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Dist returns the Euclidean distance between p and q.
func Dist(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// BBox is an axis-aligned box given by its top-left and bottom-right corners.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the box width, never negative.
func (b BBox) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

// Height returns the box height, never negative.
func (b BBox) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area returns the box area.
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the box centre.
func (b BBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// BottomCenter returns the midpoint of the bottom edge, which is where a
// standing person meets the ground.
func (b BBox) BottomCenter() Point {
	return Point{X: b.X1 + b.Width()/2, Y: b.Y2}
}

// Rect returns the box as an integer rectangle, truncating coordinates.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// ImagePoint converts p to integer image coordinates, truncating.
func (p Point) ImagePoint() image.Point {
	return image.Pt(int(p.X), int(p.Y))
}

// IoU returns the intersection-over-union of a and b, in [0, 1].
func IoU(a, b BBox) float64 {
	ix := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1)
	iy := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Orientation returns the z component of (q-p)×(r-p): positive when r lies
// counter-clockwise of the directed line p→q, negative when clockwise and
// zero when the three points are collinear.
func Orientation(p, q, r Point) float64 {
	return (q.X-p.X)*(r.Y-p.Y) - (q.Y-p.Y)*(r.X-p.X)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment reports whether r, known to be collinear with p and q, lies
// within the bounding box of segment pq.
func onSegment(p, q, r Point) bool {
	return r.X <= math.Max(p.X, q.X) && r.X >= math.Min(p.X, q.X) &&
		r.Y <= math.Max(p.Y, q.Y) && r.Y >= math.Min(p.Y, q.Y)
}

// SegmentsIntersect is the four-orientation test for segments p1p2 and
// q1q2, including touching and collinear-overlap cases.
func SegmentsIntersect(p1, p2, q1, q2 Point) bool {
	o1 := sign(Orientation(p1, p2, q1))
	o2 := sign(Orientation(p1, p2, q2))
	o3 := sign(Orientation(q1, q2, p1))
	o4 := sign(Orientation(q1, q2, p2))

	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(p1, p2, q1):
		return true
	case o2 == 0 && onSegment(p1, p2, q2):
		return true
	case o3 == 0 && onSegment(q1, q2, p1):
		return true
	case o4 == 0 && onSegment(q1, q2, p2):
		return true
	}
	return false
}

// Crosses reports whether the movement prev→cur crosses segment ab. prev
// must lie strictly on one side of the line; cur may lie on it or beyond.
// A path that stops exactly on the line therefore counts once, on arrival,
// and never again when it leaves.
func Crosses(prev, cur, a, b Point) bool {
	d1 := sign(Orientation(a, b, prev))
	d2 := sign(Orientation(a, b, cur))
	if d1 == 0 || d1 == d2 {
		return false
	}
	return SegmentsIntersect(prev, cur, a, b)
}
