package chart

import (
	"image"
	"math"
)

// OrderCorners arranges four quad vertices as top-left, top-right,
// bottom-right, bottom-left. The top-left corner has the smallest x+y and the
// bottom-right the largest; the top-right has the smallest y-x and the
// bottom-left the largest.
func OrderCorners(pts [4]image.Point) [4]image.Point {
	var tl, tr, br, bl image.Point
	minSum, maxSum := math.MaxInt, math.MinInt
	minDiff, maxDiff := math.MaxInt, math.MinInt
	for _, p := range pts {
		s, d := p.X+p.Y, p.Y-p.X
		if s < minSum {
			minSum, tl = s, p
		}
		if s > maxSum {
			maxSum, br = s, p
		}
		if d < minDiff {
			minDiff, tr = d, p
		}
		if d > maxDiff {
			maxDiff, bl = d, p
		}
	}
	return [4]image.Point{tl, tr, br, bl}
}

func edge(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// TargetSize returns the size of the warped chart for ordered corners: the
// longer of each pair of opposing edges, truncated to whole pixels.
func TargetSize(c [4]image.Point) (width, height int) {
	tl, tr, br, bl := c[0], c[1], c[2], c[3]
	width = int(math.Max(edge(br, bl), edge(tr, tl)))
	height = int(math.Max(edge(tr, br), edge(tl, bl)))
	return width, height
}
