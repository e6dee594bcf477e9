// Package vision converts template match results into machine offsets and
// provides a small pure Go template matcher.
package vision

import (
	"errors"
	"image"
	"sort"

	"github.com/mastercactapus/gpnp/coord"
)

// ErrNoMatch is returned when a template cannot be found in an image.
var ErrNoMatch = errors.New("template not found")

// Match is the center of a located template, in image pixels, and a score
// in [0, 1] where 1 is a perfect match.
type Match struct {
	X, Y  float64
	Score float64
}

// SortMatches orders matches best first.
func SortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool { return m[i].Score > m[j].Score })
}

// Offset converts the distance from the image center to m into machine
// units. Image Y grows downward while machine Y grows upward, so Y is
// inverted.
func Offset(bounds image.Rectangle, m Match, unitsPerPixel coord.Location) coord.Location {
	cx := float64(bounds.Min.X) + float64(bounds.Dx())/2
	cy := float64(bounds.Min.Y) + float64(bounds.Dy())/2

	dx := m.X - cx
	dy := cy - m.Y

	return coord.Location{
		Units: unitsPerPixel.Units,
		X:     dx * unitsPerPixel.X,
		Y:     dy * unitsPerPixel.Y,
	}
}
