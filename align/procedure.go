package align

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/pcb"
)

var (
	ErrWrongStep        = errors.New("alignment step out of order")
	ErrSamePlacement    = errors.New("both references are the same placement")
	ErrUnknownPlacement = errors.New("placement is not on the board")
)

// Step is the position within a Procedure.
type Step int

const (
	CaptureA Step = iota
	SelectA
	CaptureB
	SelectB
	Apply
	Done
)

func (s Step) String() string {
	switch s {
	case CaptureA:
		return "capture A"
	case SelectA:
		return "select A"
	case CaptureB:
		return "capture B"
	case SelectB:
		return "select B"
	case Apply:
		return "apply"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Procedure walks an operator through a two point alignment of a board
// location. Each call only succeeds at its own step; nothing advances on
// its own.
type Procedure struct {
	mx sync.Mutex

	bl        *pcb.BoardLocation
	tolerance float64

	step     Step
	observed [2]coord.Location
	refs     [2]*pcb.Placement
	result   coord.Location
}

func NewProcedure(bl *pcb.BoardLocation) *Procedure {
	return &Procedure{bl: bl, tolerance: DefaultTolerance}
}

// SetTolerance overrides DefaultTolerance.
func (p *Procedure) SetTolerance(t float64) {
	p.mx.Lock()
	p.tolerance = t
	p.mx.Unlock()
}

func (p *Procedure) Step() Step {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.step
}

// Reset returns to the first step, discarding captured points.
func (p *Procedure) Reset() {
	p.mx.Lock()
	p.step = CaptureA
	p.observed = [2]coord.Location{}
	p.refs = [2]*pcb.Placement{}
	p.mx.Unlock()
}

// Capture records where the current reference was observed on the machine.
func (p *Procedure) Capture(observed coord.Location) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	switch p.step {
	case CaptureA:
		p.observed[0] = observed
	case CaptureB:
		p.observed[1] = observed
	default:
		return fmt.Errorf("%w: capture during %s", ErrWrongStep, p.step)
	}
	p.step++
	return nil
}

// Select names the placement that was just captured.
func (p *Procedure) Select(pl *pcb.Placement) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if pl == nil || p.bl.Board == nil || p.bl.Board.Placement(pl.ID) != pl {
		return ErrUnknownPlacement
	}

	switch p.step {
	case SelectA:
		p.refs[0] = pl
	case SelectB:
		if pl == p.refs[0] {
			return ErrSamePlacement
		}
		p.refs[1] = pl
	default:
		return fmt.Errorf("%w: select during %s", ErrWrongStep, p.step)
	}
	p.step++
	return nil
}

// Apply computes the board location and stores it. The board Z is kept, as
// alignment does not measure height. On failure the procedure stays at the
// apply step so it can be reset.
func (p *Procedure) Apply() (coord.Location, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.step != Apply {
		return coord.Location{}, fmt.Errorf("%w: apply during %s", ErrWrongStep, p.step)
	}

	loc, err := Compute(p.refs[0].Location, p.refs[1].Location, p.observed[0], p.observed[1], p.tolerance)
	if err != nil {
		return coord.Location{}, err
	}

	loc.Z = p.bl.Location.ConvertTo(loc.Units).Z
	p.bl.Location = loc
	p.result = loc
	p.step = Done
	return loc, nil
}

// Result is the location applied by the last successful Apply.
func (p *Procedure) Result() (coord.Location, bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.result, p.step == Done
}
