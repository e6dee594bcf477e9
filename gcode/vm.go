package gcode

import (
	"errors"

	"github.com/mastercactapus/gpnp/coord"
)

// VM tracks the axis state a controller would hold after running blocks.
//
// Positions are kept in millimeters. A carries rotation in degrees.
type VM struct {
	pos   coord.Point
	a     float64
	modal [256]float64
	feed  float64
}

// NewVM constructs a new VM with default state.
func NewVM() *VM {
	vm := &VM{}

	vm.modal[ModalGroupMotion] = 0
	vm.modal[ModalGroupDistanceMode] = 90
	vm.modal[ModalGroupUnits] = 21
	vm.modal[ModalGroupVacuum] = 5

	return vm
}

func (vm *VM) Inches() bool         { return vm.modal[ModalGroupUnits] == 20 }
func (vm *VM) RelativeMotion() bool { return vm.modal[ModalGroupDistanceMode] == 91 }

// Vacuum reports whether the last vacuum word was M4 (on).
func (vm *VM) Vacuum() bool { return vm.modal[ModalGroupVacuum] == 4 }

func (vm *VM) Feed() float64 { return vm.feed }

// Pos returns the current X/Y/Z position and the A axis.
func (vm *VM) Pos() (coord.Point, float64) { return vm.pos, vm.a }

func (vm *VM) SetPos(p coord.Point, a float64) {
	vm.pos = p
	vm.a = a
}

func isSupported(g Word) bool {
	if g.IsAxis() {
		return true
	}

	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 4, 20, 21, 28, 28.2, 38.2, 53, 90, 91, 92:
			return true
		}
	case 'F', 'P':
		return true
	case 'M':
		switch g.Arg {
		case 4, 5, 7, 8, 9, 84:
			return true
		}
	}

	return false
}

func applyAxes(p coord.Point, a float64, b Block, mul float64, relative bool) (coord.Point, float64) {
	for _, g := range b {
		v := g.Arg
		if g.W != 'A' {
			v *= mul
		}
		if relative {
			switch g.W {
			case 'X':
				p.X += v
			case 'Y':
				p.Y += v
			case 'Z':
				p.Z += v
			case 'A':
				a += v
			}
			continue
		}
		switch g.W {
		case 'X':
			p.X = v
		case 'Y':
			p.Y = v
		case 'Z':
			p.Z = v
		case 'A':
			a = v
		}
	}
	return p, a
}

// Run applies a block. Motion is taken as instantaneous.
func (vm *VM) Run(b Block) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	for _, g := range b {
		if !isSupported(g) {
			return errors.New("unsupported code: " + g.String())
		}
		mg := g.ModalGroup()
		if mg != ModalGroupNone && mg != ModalGroupNonModal && mg != ModalGroupFeedRate {
			vm.modal[mg] = g.Arg
		}
		if g.W == 'F' {
			vm.feed = g.Arg
		}
	}

	axes := b.Axes()
	if len(axes) == 0 {
		return nil
	}

	mul := 1.0
	if vm.Inches() {
		mul = 25.4
	}

	switch {
	case b.Has(Word{W: 'G', Arg: 4}):
		// dwell carries no axes
		return nil
	case b.Has(Word{W: 'G', Arg: 92}):
		// G92 declares the current position to be the given value
		vm.pos, vm.a = applyAxes(vm.pos, vm.a, axes, mul, false)
	case b.Has(Word{W: 'G', Arg: 28}), b.Has(Word{W: 'G', Arg: 28.2}):
		vm.pos, vm.a = applyAxes(vm.pos, vm.a, zeroed(axes), 1, false)
	default:
		vm.pos, vm.a = applyAxes(vm.pos, vm.a, axes, mul, vm.RelativeMotion())
	}

	return nil
}

func zeroed(b Block) Block {
	res := b.Clone()
	for i := range res {
		res[i].Arg = 0
	}
	return res
}
