// Package feeder implements the part supply mechanisms: a fixed single
// part location, an indexed tray and a vision corrected tape drag feeder.
package feeder

import (
	"errors"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/pcb"
)

var (
	ErrTrayEmpty = errors.New("tray is empty")
	ErrNoCamera  = errors.New("head has no camera with vision")
)

// Base carries the identity and enable state shared by all feeders.
type Base struct {
	id       string
	part     *pcb.Part
	location coord.Location

	mx      sync.Mutex
	enabled bool
}

func (b *Base) init(id string, part *pcb.Part, loc coord.Location) {
	b.id = id
	b.part = part
	b.location = loc
	b.enabled = true
}

func (b *Base) ID() string               { return b.id }
func (b *Base) Part() *pcb.Part          { return b.part }
func (b *Base) Location() coord.Location { return b.location }

func (b *Base) Enabled() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.enabled
}

func (b *Base) SetEnabled(v bool) {
	b.mx.Lock()
	b.enabled = v
	b.mx.Unlock()
}

// StaticFeeder always presents a part at the same location, e.g. a loose
// part placed by hand.
type StaticFeeder struct {
	Base
}

var _ machine.Feeder = &StaticFeeder{}

func NewStaticFeeder(id string, part *pcb.Part, loc coord.Location) *StaticFeeder {
	f := &StaticFeeder{}
	f.init(id, part, loc)
	return f
}

func (f *StaticFeeder) CanFeedForHead(machine.Head) bool { return true }

func (f *StaticFeeder) Feed(h machine.Head, pick coord.Location) (coord.Location, error) {
	return pick, nil
}
