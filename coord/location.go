package coord

import (
	"fmt"
	"math"
)

// Location is a position plus rotation (degrees) in a given unit.
//
// Locations are values: every method returns a new Location.
type Location struct {
	Units LengthUnit

	X, Y, Z  float64
	Rotation float64
}

func NewLocation(u LengthUnit, x, y, z, rotation float64) Location {
	return Location{Units: u, X: x, Y: y, Z: z, Rotation: rotation}
}

// ConvertTo returns l expressed in u. Rotation is unit-less and kept as-is.
func (l Location) ConvertTo(u LengthUnit) Location {
	if l.Units == u {
		return l
	}
	return Location{
		Units:    u,
		X:        Convert(l.X, l.Units, u),
		Y:        Convert(l.Y, l.Units, u),
		Z:        Convert(l.Z, l.Units, u),
		Rotation: l.Rotation,
	}
}

// Add returns the component-wise sum of l and o, including rotation.
// o is converted to the units of l first.
func (l Location) Add(o Location) Location {
	o = o.ConvertTo(l.Units)
	l.X += o.X
	l.Y += o.Y
	l.Z += o.Z
	l.Rotation += o.Rotation
	return l
}

// Subtract returns l - o, including rotation. o is converted to the units
// of l first.
func (l Location) Subtract(o Location) Location {
	o = o.ConvertTo(l.Units)
	l.X -= o.X
	l.Y -= o.Y
	l.Z -= o.Z
	l.Rotation -= o.Rotation
	return l
}

// SubtractXY is Subtract restricted to the X and Y axes.
func (l Location) SubtractXY(o Location) Location {
	o = o.ConvertTo(l.Units)
	l.X -= o.X
	l.Y -= o.Y
	return l
}

func (l Location) WithX(v float64) Location        { l.X = v; return l }
func (l Location) WithY(v float64) Location        { l.Y = v; return l }
func (l Location) WithZ(v float64) Location        { l.Z = v; return l }
func (l Location) WithRotation(v float64) Location { l.Rotation = v; return l }

// DistanceXY is the planar distance between l and o, in the units of l.
func (l Location) DistanceXY(o Location) float64 {
	o = o.ConvertTo(l.Units)
	return math.Hypot(o.X-l.X, o.Y-l.Y)
}

// Point drops the unit and rotation.
func (l Location) Point() Point {
	return Point{X: l.X, Y: l.Y, Z: l.Z}
}

func (l Location) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f, %.4f %s)", l.X, l.Y, l.Z, l.Rotation, l.Units)
}
