package machine

import "github.com/mastercactapus/gpnp/coord"

// A Driver is the minimal motion controller interface.
//
// Every motion or actuation call returns once the controller reports the
// operation physically complete.
type Driver interface {
	Connected() bool
	Units() coord.LengthUnit

	// Location is the last commanded position in native units.
	Location() coord.Location

	Home() error
	MoveTo(loc coord.Location, speed float64) error
	Pick() error
	Place() error
	Actuate(name string, on bool) error

	// Probe lowers Z until contact or maxTravel (native units, relative).
	Probe(maxTravel, feedRate float64) (ProbeResult, error)
}

type ProbeResult struct {
	coord.Point
	Valid bool
}
