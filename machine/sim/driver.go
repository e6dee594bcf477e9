package sim

import (
	"fmt"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
)

// Driver is an in-memory machine.Driver that records every call.
type Driver struct {
	units coord.LengthUnit

	mx        sync.Mutex
	connected bool
	pos       coord.Location
	vacuum    bool
	outputs   map[string]bool
	calls     []string
	moves     []coord.Location
	fail      map[string]error

	// Surface is the Z height Probe stops at. Nil never makes contact.
	Surface func(x, y float64) float64
}

var _ machine.Driver = &Driver{}

// NewDriver returns a connected Driver working in u.
func NewDriver(u coord.LengthUnit) *Driver {
	return &Driver{
		units:     u,
		connected: true,
		pos:       coord.Location{Units: u},
		outputs:   make(map[string]bool),
		fail:      make(map[string]error),
	}
}

func (d *Driver) SetConnected(v bool) {
	d.mx.Lock()
	d.connected = v
	d.mx.Unlock()
}

// FailOn makes every call to op ("MoveTo", "Home", "Pick", "Place",
// "Actuate", "Probe") return err. A nil err clears it.
func (d *Driver) FailOn(op string, err error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err == nil {
		delete(d.fail, op)
		return
	}
	d.fail[op] = err
}

// Calls returns a log of operations, e.g. "Pick" or "Actuate drag true".
func (d *Driver) Calls() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]string(nil), d.calls...)
}

// Moves returns every MoveTo target in native units.
func (d *Driver) Moves() []coord.Location {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]coord.Location(nil), d.moves...)
}

func (d *Driver) Vacuum() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.vacuum
}

func (d *Driver) Output(name string) bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.outputs[name]
}

func (d *Driver) record(op, call string) error {
	d.calls = append(d.calls, call)
	return d.fail[op]
}

func (d *Driver) Connected() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.connected
}

func (d *Driver) Units() coord.LengthUnit { return d.units }

func (d *Driver) Location() coord.Location {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.pos
}

func (d *Driver) Home() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.record("Home", "Home"); err != nil {
		return err
	}
	d.pos = coord.Location{Units: d.units}
	return nil
}

func (d *Driver) MoveTo(loc coord.Location, speed float64) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	loc = loc.ConvertTo(d.units)
	if err := d.record("MoveTo", "MoveTo "+loc.String()); err != nil {
		return err
	}
	d.pos = loc
	d.moves = append(d.moves, loc)
	return nil
}

func (d *Driver) Pick() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.record("Pick", "Pick"); err != nil {
		return err
	}
	d.vacuum = true
	return nil
}

func (d *Driver) Place() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.record("Place", "Place"); err != nil {
		return err
	}
	d.vacuum = false
	return nil
}

func (d *Driver) Actuate(name string, on bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.record("Actuate", fmt.Sprintf("Actuate %s %t", name, on)); err != nil {
		return err
	}
	d.outputs[name] = on
	return nil
}

func (d *Driver) Probe(maxTravel, feedRate float64) (machine.ProbeResult, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.record("Probe", "Probe"); err != nil {
		return machine.ProbeResult{}, err
	}

	target := d.pos.Z - maxTravel
	res := machine.ProbeResult{}
	if d.Surface != nil {
		if s := d.Surface(d.pos.X, d.pos.Y); s <= d.pos.Z && s >= target {
			target = s
			res.Valid = true
		}
	}
	d.pos.Z = target
	res.Point = d.pos.Point()
	return res, nil
}
