package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffset(t *testing.T) {
	upp := coord.NewLocation(coord.Millimeters, 0.01, 0.02, 0, 0)
	bounds := image.Rect(0, 0, 640, 480)

	off := Offset(bounds, Match{X: 320, Y: 240}, upp)
	assert.Equal(t, 0.0, off.X)
	assert.Equal(t, 0.0, off.Y)

	// right of and above center in the image
	off = Offset(bounds, Match{X: 420, Y: 140}, upp)
	assert.InDelta(t, 1.0, off.X, 1e-9)
	assert.InDelta(t, 2.0, off.Y, 1e-9)
	assert.Equal(t, coord.Millimeters, off.Units)
}

func TestSortMatches(t *testing.T) {
	m := []Match{{Score: 0.2}, {Score: 0.9}, {Score: 0.5}}
	SortMatches(m)
	assert.Equal(t, []float64{0.9, 0.5, 0.2}, []float64{m[0].Score, m[1].Score, m[2].Score})
}

func square(w, h, x, y, size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for py := y; py < y+size; py++ {
		for px := x; px < x+size; px++ {
			img.SetGray(px, py, color.Gray{Y: 255})
		}
	}
	return img
}

func TestSAD_LocateTemplateMatches(t *testing.T) {
	img := square(40, 30, 22, 6, 4)
	tpl := square(8, 8, 2, 2, 4)

	m, err := SAD{}.LocateTemplateMatches(img, tpl, 0.9)
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, 24.0, m[0].X)
	assert.Equal(t, 8.0, m[0].Y)
	assert.Equal(t, 1.0, m[0].Score)

	_, err = SAD{}.LocateTemplateMatches(tpl, img, 0.9)
	assert.Error(t, err)
}

func TestSAD_NoMatch(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	tpl := square(4, 4, 0, 0, 4)
	_, err := SAD{}.LocateTemplateMatches(img, tpl, 0.5)
	assert.Equal(t, ErrNoMatch, err)
}
