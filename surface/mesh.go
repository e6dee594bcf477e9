// Package surface models the probed height of a board so that placement Z
// can follow a warped or tilted panel.
package surface

import (
	"errors"
	"math"

	"github.com/fogleman/delaunay"
	"github.com/mastercactapus/gpnp/coord"
)

// ZOffsetter reports the surface height correction at a machine X/Y.
//
// ok is false outside the probed area, in which case no correction applies.
type ZOffsetter interface {
	OffsetZ(x, y float64) (ok bool, z float64)
}

// Flat is a ZOffsetter with a constant correction everywhere.
type Flat float64

func (f Flat) OffsetZ(x, y float64) (bool, float64) { return true, float64(f) }

// Mesh interpolates probed heights over a Delaunay triangulation.
type Mesh struct {
	minX, minY, maxX, maxY float64
	facets                 []facet
}

var _ ZOffsetter = &Mesh{}

// NewMesh triangulates the probe points. Z of each point is the measured
// deviation from the nominal surface.
func NewMesh(points []coord.Point) (*Mesh, error) {
	if len(points) < 3 {
		return nil, errors.New("need at least 3 points to create a mesh")
	}

	points2d := make([]delaunay.Point, len(points))
	byXY := make(map[delaunay.Point]coord.Point, len(points))

	mesh := &Mesh{
		minX: points[0].X,
		minY: points[0].Y,
		maxX: points[0].X,
		maxY: points[0].Y,
	}
	for i, p := range points {
		mesh.minX = math.Min(mesh.minX, p.X)
		mesh.minY = math.Min(mesh.minY, p.Y)
		mesh.maxX = math.Max(mesh.maxX, p.X)
		mesh.maxY = math.Max(mesh.maxY, p.Y)

		d := delaunay.Point{X: p.X, Y: p.Y}
		byXY[d] = p
		points2d[i] = d
	}
	mesh.minX -= coord.Epsilon
	mesh.minY -= coord.Epsilon
	mesh.maxX += coord.Epsilon
	mesh.maxY += coord.Epsilon

	tri, err := delaunay.Triangulate(points2d)
	if err != nil {
		return nil, err
	}
	if len(tri.Triangles) == 0 {
		return nil, errors.New("probe points are collinear")
	}

	mesh.facets = make([]facet, 0, len(tri.Triangles)/3)
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		mesh.facets = append(mesh.facets, facet{
			a: byXY[tri.Points[tri.Triangles[i]]],
			b: byXY[tri.Points[tri.Triangles[i+1]]],
			c: byXY[tri.Points[tri.Triangles[i+2]]],
		})
	}

	return mesh, nil
}

// Relative returns points with z subtracted from every height, turning
// absolute probe results into deviations from a nominal surface at z.
func Relative(z float64, points []coord.Point) []coord.Point {
	p := make([]coord.Point, len(points))
	copy(p, points)
	for i := range p {
		p[i].Z -= z
	}
	return p
}

func (m *Mesh) OffsetZ(x, y float64) (bool, float64) {
	if x < m.minX || m.maxX < x || y < m.minY || m.maxY < y {
		return false, 0
	}
	for _, f := range m.facets {
		if !f.containsXY(x, y) {
			continue
		}
		return true, f.z(x, y)
	}

	return false, 0
}
