// Package machine defines the hardware contracts the job engine drives
// (heads, feeders, cameras, the motion controller) and reference
// implementations built on a Driver.
package machine

import (
	"errors"
	"image"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/pcb"
	"github.com/mastercactapus/gpnp/vision"
)

var (
	ErrNoDriver     = errors.New("machine has no driver")
	ErrNotConnected = errors.New("driver not connected")
	ErrNoHeads      = errors.New("machine has no heads")
)

// A Head moves a nozzle and picks or places parts with it.
type Head interface {
	ID() string

	// MoveTo moves so the nozzle is at loc. speed scales the configured
	// feed rate and is in the range (0, 1].
	MoveTo(loc coord.Location, speed float64) error
	MoveToSafeZ(speed float64) error
	SafeZ() coord.Length

	Pick(part *pcb.Part, f Feeder, loc coord.Location) error
	Place(part *pcb.Part, loc coord.Location) error
	CanPickAndPlace(f Feeder, pick, place coord.Location) bool

	// Camera returns the camera mounted on the head, or nil.
	Camera() Camera
}

// A Feeder supplies parts at a pick location.
type Feeder interface {
	ID() string
	Part() *pcb.Part
	Enabled() bool
	Location() coord.Location

	CanFeedForHead(h Head) bool

	// Feed prepares the next part, moving h if the mechanism requires it,
	// and returns the corrected pick location.
	Feed(h Head, pick coord.Location) (coord.Location, error)
}

// A Camera captures images of what is beneath it.
type Camera interface {
	ID() string
	MoveTo(loc coord.Location, speed float64) error
	Capture() (image.Image, error)
	UnitsPerPixel() coord.Location
	Vision() VisionProvider
}

// A VisionProvider finds a template in an image. Matches are returned
// best first.
type VisionProvider interface {
	LocateTemplateMatches(img, template image.Image, threshold float64) ([]vision.Match, error)
}

// An Actuator is a binary output such as a drag pin solenoid.
type Actuator interface {
	ID() string
	Actuate(on bool) error
}

// Machine groups the driver with the heads and feeders attached to it.
//
// Heads and Feeders are expected to be set up before a job runs and not
// changed while it does.
type Machine struct {
	Driver  Driver
	Heads   []Head
	Feeders []Feeder
}

func NewMachine(d Driver) *Machine {
	return &Machine{Driver: d}
}

// Units is the native length unit of the driver.
func (m *Machine) Units() coord.LengthUnit {
	if m.Driver == nil {
		return coord.Millimeters
	}
	return m.Driver.Units()
}

// Ready returns an error if the machine cannot run a job.
func (m *Machine) Ready() error {
	if m.Driver == nil {
		return ErrNoDriver
	}
	if !m.Driver.Connected() {
		return ErrNotConnected
	}
	if len(m.Heads) == 0 {
		return ErrNoHeads
	}
	return nil
}

// Home homes the controller and raises every head to safe Z.
func (m *Machine) Home() error {
	if m.Driver == nil {
		return ErrNoDriver
	}
	err := m.Driver.Home()
	if err != nil {
		return err
	}
	for _, h := range m.Heads {
		err = h.MoveToSafeZ(1)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) Feeder(id string) Feeder {
	for _, f := range m.Feeders {
		if f.ID() == id {
			return f
		}
	}
	return nil
}

func (m *Machine) Head(id string) Head {
	for _, h := range m.Heads {
		if h.ID() == id {
			return h
		}
	}
	return nil
}

type fatalError struct{ err error }

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// Fatal marks err as unrecoverable: a job must stop rather than carry on
// with the next step.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked by Fatal.
func IsFatal(err error) bool {
	var f fatalError
	return errors.As(err, &f)
}
