package machine

import (
	"errors"
	"fmt"
	"math"

	"github.com/mastercactapus/gpnp/coord"
)

// ProbeGridOptions configure a grid of Z probes over a board.
type ProbeGridOptions struct {
	// Origin is the first corner of the grid; Z is ignored.
	Origin coord.Location

	DistanceX, DistanceY float64
	Granularity          float64

	FeedRate  float64
	MaxTravel float64
}

// ProbeGrid probes heights over a rectangle using h for travel moves.
//
// It visits rows in a serpentine so that no two points along the path are
// farther than Granularity apart, lifting to safe Z between moves.
func (m *Machine) ProbeGrid(h Head, opt ProbeGridOptions) ([]coord.Point, error) {
	if m.Driver == nil {
		return nil, ErrNoDriver
	}
	if opt.Granularity <= 0 {
		return nil, errors.New("probe granularity must be positive")
	}

	units := m.Units()
	origin := opt.Origin.ConvertTo(units)

	xCount := int(math.Max(1, math.Ceil(opt.DistanceX/opt.Granularity)))
	yCount := int(math.Max(1, math.Ceil(opt.DistanceY/opt.Granularity)))

	res := make([]coord.Point, 0, (xCount+1)*(yCount+1))
	for y := 0; y <= yCount; y++ {
		for x := 0; x <= xCount; x++ {
			xVal := opt.DistanceX / float64(xCount) * float64(x)
			if y%2 != 0 {
				xVal = opt.DistanceX - xVal
			}
			yVal := opt.DistanceY / float64(yCount) * float64(y)

			err := h.MoveToSafeZ(1)
			if err != nil {
				return nil, err
			}
			target := origin.WithX(origin.X + xVal).WithY(origin.Y + yVal).WithZ(h.SafeZ().In(units))
			err = h.MoveTo(target, 1)
			if err != nil {
				return nil, err
			}
			p, err := m.Driver.Probe(opt.MaxTravel, opt.FeedRate)
			if err != nil {
				return nil, err
			}
			if !p.Valid {
				return nil, fmt.Errorf("probe at %.3f,%.3f made no contact", target.X, target.Y)
			}
			res = append(res, p.Point)
		}
	}

	err := h.MoveToSafeZ(1)
	if err != nil {
		return nil, err
	}
	return res, nil
}
