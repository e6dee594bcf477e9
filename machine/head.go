package machine

import (
	"errors"
	"fmt"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/pcb"
)

// ErrSoftLimit is returned for moves outside a head's travel limits.
var ErrSoftLimit = errors.New("location outside soft limits")

// Limits bound the X/Y travel of a head. A zero Limits allows anything.
type Limits struct {
	Min, Max coord.Location
}

func (l Limits) contains(loc coord.Location) bool {
	if l.Min == l.Max {
		return true
	}
	min := l.Min.ConvertTo(loc.Units)
	max := l.Max.ConvertTo(loc.Units)
	return min.X <= loc.X && loc.X <= max.X && min.Y <= loc.Y && loc.Y <= max.Y
}

// HeadOptions configure a ReferenceHead.
type HeadOptions struct {
	ID     string
	SafeZ  coord.Length
	Limits Limits
}

// ReferenceHead is a single nozzle head driven directly by a Driver.
type ReferenceHead struct {
	opt    HeadOptions
	driver Driver
	camera Camera
}

var _ Head = &ReferenceHead{}

func NewReferenceHead(d Driver, opt HeadOptions) *ReferenceHead {
	return &ReferenceHead{opt: opt, driver: d}
}

func (h *ReferenceHead) ID() string          { return h.opt.ID }
func (h *ReferenceHead) SafeZ() coord.Length { return h.opt.SafeZ }
func (h *ReferenceHead) Camera() Camera      { return h.camera }

// SetCamera mounts c on the head.
func (h *ReferenceHead) SetCamera(c Camera) { h.camera = c }

func (h *ReferenceHead) MoveTo(loc coord.Location, speed float64) error {
	if !h.opt.Limits.contains(loc) {
		return fmt.Errorf("move head %s to %s: %w", h.opt.ID, loc, ErrSoftLimit)
	}
	return h.driver.MoveTo(loc, speed)
}

// MoveToSafeZ raises the nozzle without moving X, Y or rotation.
func (h *ReferenceHead) MoveToSafeZ(speed float64) error {
	cur := h.driver.Location()
	return h.driver.MoveTo(cur.WithZ(h.opt.SafeZ.In(cur.Units)), speed)
}

func (h *ReferenceHead) Pick(part *pcb.Part, f Feeder, loc coord.Location) error {
	return h.driver.Pick()
}

func (h *ReferenceHead) Place(part *pcb.Part, loc coord.Location) error {
	return h.driver.Place()
}

func (h *ReferenceHead) CanPickAndPlace(f Feeder, pick, place coord.Location) bool {
	return h.opt.Limits.contains(pick) && h.opt.Limits.contains(place)
}

// DriverActuator exposes a named driver output as an Actuator.
type DriverActuator struct {
	Name   string
	Driver Driver
}

func (a DriverActuator) ID() string { return a.Name }

func (a DriverActuator) Actuate(on bool) error {
	return a.Driver.Actuate(a.Name, on)
}
