package feeder

import (
	"fmt"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/pcb"
)

// TrayOptions describe the grid of pockets in a tray.
type TrayOptions struct {
	CountX, CountY int

	// Offsets is the pitch between pockets along X and Y.
	Offsets coord.Location
}

// TrayFeeder picks in order from a grid of pockets. The feeder location is
// the first pocket.
type TrayFeeder struct {
	Base
	opt TrayOptions

	mx        sync.Mutex
	feedCount int
}

var _ machine.Feeder = &TrayFeeder{}

func NewTrayFeeder(id string, part *pcb.Part, loc coord.Location, opt TrayOptions) *TrayFeeder {
	f := &TrayFeeder{opt: opt}
	f.init(id, part, loc)
	return f
}

func (f *TrayFeeder) capacity() int { return f.opt.CountX * f.opt.CountY }

// FeedCount is the number of parts fed so far.
func (f *TrayFeeder) FeedCount() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.feedCount
}

// Remaining is the number of parts left in the tray.
func (f *TrayFeeder) Remaining() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.capacity() - f.feedCount
}

// Reset marks the tray as refilled.
func (f *TrayFeeder) Reset() {
	f.mx.Lock()
	f.feedCount = 0
	f.mx.Unlock()
}

// CanFeedForHead is false once the tray is exhausted.
func (f *TrayFeeder) CanFeedForHead(machine.Head) bool { return f.Remaining() > 0 }

// cell returns the grid position of the n-th part. Parts are taken along
// the shorter side first.
func (f *TrayFeeder) cell(n int) (x, y int) {
	if f.opt.CountX >= f.opt.CountY {
		return n / f.opt.CountY, n % f.opt.CountY
	}
	return n % f.opt.CountX, n / f.opt.CountX
}

func (f *TrayFeeder) Feed(h machine.Head, pick coord.Location) (coord.Location, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	if f.feedCount >= f.capacity() {
		return coord.Location{}, fmt.Errorf("feeder %s: %w", f.id, ErrTrayEmpty)
	}

	x, y := f.cell(f.feedCount)
	off := f.opt.Offsets.ConvertTo(pick.Units)
	f.feedCount++

	return pick.
		WithX(pick.X + off.X*float64(x)).
		WithY(pick.Y + off.Y*float64(y)), nil
}
