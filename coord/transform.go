package coord

import "math"

// RotateTranslateScalePoint scales p about the origin, rotates it by
// rotation degrees and then translates it by (dx, dy). Z is left alone.
//
// Rotation is clockwise-positive in the machine's frame. Pass a negated angle
// for a counter-clockwise rotation.
func RotateTranslateScalePoint(p Point, rotation, dx, dy, scale float64) Point {
	x, y := p.X*scale, p.Y*scale
	x, y = rotateXY(x, y, rotation)
	p.X = x + dx
	p.Y = y + dy
	return p
}

// RotateTranslateScaleOutline applies RotateTranslateScalePoint to every
// point of an outline.
func RotateTranslateScaleOutline(outline []Point, rotation, dx, dy, scale float64) []Point {
	res := make([]Point, len(outline))
	for i, p := range outline {
		res[i] = RotateTranslateScalePoint(p, rotation, dx, dy, scale)
	}
	return res
}

// RotatePoint rotates p about the origin.
func RotatePoint(p Point, rotation float64) Point {
	return RotateTranslateScalePoint(p, rotation, 0, 0, 1)
}

func rotateXY(x, y, rotation float64) (float64, float64) {
	if rotation == 0 {
		return x, y
	}
	sin, cos := math.Sincos(-rotation * math.Pi / 180)
	return x*cos - y*sin, x*sin + y*cos
}

// NormalizeAngle folds deg into the range (-180, 180].
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}
