// Package align locates a board on the machine from two observed
// placements.
package align

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/mastercactapus/gpnp/coord"
)

// DefaultTolerance is how far, in machine units, the observed distance may
// fall outside the range the board geometry allows before alignment fails.
const DefaultTolerance = 0.1

var (
	ErrNoIntersection = errors.New("observed points do not fit the board geometry")
	ErrCoincident     = errors.New("reference points coincide")
)

// CalibrationError describes a failed alignment.
type CalibrationError struct {
	Err error

	// Distance is between the observed points, R1 and R2 are the distances
	// of the nominal points from the board origin.
	Distance, R1, R2 float64
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("alignment: %v (observed distance %.3f, radii %.3f and %.3f)", e.Err, e.Distance, e.R1, e.R2)
}

func (e *CalibrationError) Unwrap() error { return e.Err }

func vec(l coord.Location) r2.Vec { return r2.Vec{X: l.X, Y: l.Y} }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Compute returns the board location, in the units of q1, given two
// nominal board-local points and where they were observed on the machine.
//
// The rotation of the result uses the clockwise-positive convention of
// coord.RotateTranslateScalePoint. Z is 0.
func Compute(p1, p2, q1, q2 coord.Location, tolerance float64) (coord.Location, error) {
	u := q1.Units
	P1, P2 := vec(p1.ConvertTo(u)), vec(p2.ConvertTo(u))
	Q1, Q2 := vec(q1), vec(q2.ConvertTo(u))

	expected := math.Atan2(P1.Y-P2.Y, P1.X-P2.X)
	indicated := math.Atan2(Q1.Y-Q2.Y, Q1.X-Q2.X)
	// counter-clockwise, radians
	rot := indicated - expected

	r1, r2n := r2.Norm(P1), r2.Norm(P2)
	d := r2.Norm(r2.Sub(Q2, Q1))

	calErr := func(err error) error {
		return &CalibrationError{Err: err, Distance: d, R1: r1, R2: r2n}
	}
	if d < coord.Epsilon || r2.Norm(r2.Sub(P2, P1)) < coord.Epsilon {
		return coord.Location{}, calErr(ErrCoincident)
	}
	if d > r1+r2n+tolerance || d < math.Abs(r1-r2n)-tolerance {
		return coord.Location{}, calErr(ErrNoIntersection)
	}

	a := (r1*r1 - r2n*r2n + d*d) / (2 * d)
	h := math.Sqrt(math.Max(0, r1*r1-a*a))

	dir := r2.Scale(1/d, r2.Sub(Q2, Q1))
	base := r2.Add(Q1, r2.Scale(a, dir))
	perp := r2.Vec{X: -dir.Y, Y: dir.X}
	candidates := [2]r2.Vec{
		r2.Add(base, r2.Scale(h, perp)),
		r2.Sub(base, r2.Scale(h, perp)),
	}

	// the right origin maps back onto P1 once the board rotation is undone
	residual := func(c r2.Vec) float64 {
		local := r2.Rotate(r2.Sub(Q1, c), -rot, r2.Vec{})
		return r2.Norm(r2.Sub(local, P1))
	}
	origin := candidates[0]
	if residual(candidates[1]) < residual(candidates[0]) {
		origin = candidates[1]
	}

	return coord.Location{
		Units:    u,
		X:        origin.X,
		Y:        origin.Y,
		Rotation: coord.NormalizeAngle(-degrees(rot)),
	}, nil
}
