package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRotateTranslateScalePoint_Identity(t *testing.T) {
	for _, p := range []Point{{}, {X: 1, Y: 2, Z: 3}, {X: -999.5, Y: 0.001}, {X: 1000, Y: 1000}} {
		assert.Equal(t, p, RotateTranslateScalePoint(p, 0, 0, 0, 1))
	}
}

func TestRotateTranslateScalePoint_Inverse(t *testing.T) {
	p := Point{X: 123.456, Y: -78.9, Z: 4}
	for _, deg := range []float64{0.5, 30, 90, 179.9, 270, -45, 1000} {
		res := RotatePoint(RotatePoint(p, deg), -deg)
		assert.InDelta(t, p.X, res.X, 1e-9, "deg=%v", deg)
		assert.InDelta(t, p.Y, res.Y, 1e-9, "deg=%v", deg)
		assert.Equal(t, p.Z, res.Z)
	}
}

func TestRotateTranslateScalePoint_Clockwise(t *testing.T) {
	// clockwise-positive: +90 takes +X to -Y
	res := RotatePoint(Point{X: 100}, 90)
	assert.InDelta(t, 0, res.X, 1e-9)
	assert.InDelta(t, -100, res.Y, 1e-9)

	res = RotatePoint(Point{X: 100}, -90)
	assert.InDelta(t, 0, res.X, 1e-9)
	assert.InDelta(t, 100, res.Y, 1e-9)
}

func TestRotateTranslateScalePoint_Order(t *testing.T) {
	// scale, then rotate, then translate
	res := RotateTranslateScalePoint(Point{X: 1, Y: 0}, -90, 10, 20, 2)
	assert.InDelta(t, 10, res.X, 1e-9)
	assert.InDelta(t, 22, res.Y, 1e-9)
}

func TestRotateTranslateScaleOutline(t *testing.T) {
	outline := []Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	res := RotateTranslateScaleOutline(outline, 0, 5, 5, 1)
	assert.Equal(t, []Point{{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}}, res)
	assert.Equal(t, Point{X: 1, Y: 0}, outline[1])
}

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, 90.0, NormalizeAngle(450))
	assert.Equal(t, -90.0, NormalizeAngle(270))
	assert.Equal(t, 180.0, NormalizeAngle(-180))
	assert.Equal(t, 0.0, NormalizeAngle(360))
}
