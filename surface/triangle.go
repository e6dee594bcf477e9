package surface

import (
	"math"

	"github.com/mastercactapus/gpnp/coord"
)

const epsilonSq = coord.Epsilon * coord.Epsilon

// facet is one triangle of probed surface heights.
type facet struct{ a, b, c coord.Point }

// containsXY returns true if the 2D projection of the facet
// has the point x,y.
func (f facet) containsXY(x, y float64) bool {
	if !f.inBoundingBox(x, y) {
		return false
	}
	if f.sameSide(x, y) {
		return true
	}

	// points right on an edge may fail the side test due to rounding
	return edgeDistanceSq(f.a, f.b, x, y) <= epsilonSq ||
		edgeDistanceSq(f.b, f.c, x, y) <= epsilonSq ||
		edgeDistanceSq(f.c, f.a, x, y) <= epsilonSq
}

// z gives the height of the facet plane at x,y.
func (f facet) z(x, y float64) float64 {
	n := f.c.Sub(f.a).Cross(f.b.Sub(f.a))
	return (n.Dot(f.c) - n.X*x - n.Y*y) / n.Z
}

func (f facet) inBoundingBox(x, y float64) bool {
	minX := math.Min(f.a.X, math.Min(f.b.X, f.c.X)) - coord.Epsilon
	maxX := math.Max(f.a.X, math.Max(f.b.X, f.c.X)) + coord.Epsilon
	minY := math.Min(f.a.Y, math.Min(f.b.Y, f.c.Y)) - coord.Epsilon
	maxY := math.Max(f.a.Y, math.Max(f.b.Y, f.c.Y)) + coord.Epsilon
	return minX <= x && x <= maxX && minY <= y && y <= maxY
}

// sameSide accepts either winding order, delaunay output is not normalized.
func (f facet) sameSide(x, y float64) bool {
	s1 := side(f.a, f.b, x, y)
	s2 := side(f.b, f.c, x, y)
	s3 := side(f.c, f.a, x, y)
	return (s1 >= 0 && s2 >= 0 && s3 >= 0) || (s1 <= 0 && s2 <= 0 && s3 <= 0)
}

func side(p1, p2 coord.Point, x, y float64) float64 {
	return (p2.Y-p1.Y)*(x-p1.X) + (p1.X-p2.X)*(y-p1.Y)
}

// adapted from https://totologic.blogspot.com/2014/01/accurate-point-in-triangle-test.html
func edgeDistanceSq(p1, p2 coord.Point, x, y float64) float64 {
	lenSq := (p2.X-p1.X)*(p2.X-p1.X) + (p2.Y-p1.Y)*(p2.Y-p1.Y)
	dot := ((x-p1.X)*(p2.X-p1.X) + (y-p1.Y)*(p2.Y-p1.Y)) / lenSq
	switch {
	case dot < 0:
		return (x-p1.X)*(x-p1.X) + (y-p1.Y)*(y-p1.Y)
	case dot <= 1:
		distSq := (p1.X-x)*(p1.X-x) + (p1.Y-y)*(p1.Y-y)
		return distSq - dot*dot*lenSq
	}
	return (x-p2.X)*(x-p2.X) + (y-p2.Y)*(y-p2.Y)
}
