package feeder

import (
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/pcb"
	"github.com/mastercactapus/gpnp/vision"
)

// DragOptions configure a DragFeeder.
type DragOptions struct {
	// FeedStart is where the drag pin drops into the tape, FeedEnd where
	// it is released. Both include the Z the pin travels at.
	FeedStart, FeedEnd coord.Location

	// FeedSpeed scales the head feed rate while dragging.
	FeedSpeed float64

	// Pin lowers and raises the drag pin.
	Pin machine.Actuator

	// Template is the image of an empty pocket (or part) beneath the
	// camera. A nil Template disables vision correction.
	Template  image.Image
	Threshold float64
}

// DragFeeder advances tape by dragging it with a pin on the head. When a
// template is set, each pick location is corrected by locating the
// template beneath the head camera.
type DragFeeder struct {
	Base
	opt DragOptions

	mx         sync.Mutex
	correction *coord.Location
}

var _ machine.Feeder = &DragFeeder{}

func NewDragFeeder(id string, part *pcb.Part, loc coord.Location, opt DragOptions) *DragFeeder {
	if opt.FeedSpeed <= 0 || opt.FeedSpeed > 1 {
		opt.FeedSpeed = 1
	}
	f := &DragFeeder{opt: opt}
	f.init(id, part, loc)
	return f
}

func (f *DragFeeder) visionEnabled() bool { return f.opt.Template != nil }

// CanFeedForHead is always true. A vision feeder used by a head without
// a vision camera fails fatally in Feed.
func (f *DragFeeder) CanFeedForHead(machine.Head) bool { return true }

// Correction returns the cached vision correction, if any.
func (f *DragFeeder) Correction() (coord.Location, bool) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.correction == nil {
		return coord.Location{}, false
	}
	return *f.correction, true
}

// Invalidate drops the cached correction so the next Feed measures again.
func (f *DragFeeder) Invalidate() {
	f.mx.Lock()
	f.correction = nil
	f.mx.Unlock()
}

func (f *DragFeeder) Feed(h machine.Head, pick coord.Location) (coord.Location, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	var corr coord.Location
	if f.visionEnabled() {
		if f.correction == nil {
			c, err := f.locate(h, pick)
			if err != nil {
				return coord.Location{}, err
			}
			f.correction = &c
		}
		corr = *f.correction
	}
	corr = corr.ConvertTo(pick.Units)

	start := f.opt.FeedStart.ConvertTo(pick.Units).SubtractXY(corr)
	end := f.opt.FeedEnd.ConvertTo(pick.Units).SubtractXY(corr)

	err := f.drag(h, start, end)
	if err != nil {
		return coord.Location{}, err
	}

	res := pick.SubtractXY(corr)

	if f.visionEnabled() {
		// measure now so the next feed does not have to
		f.correction = nil
		c, err := f.locate(h, pick)
		if err != nil {
			log.Printf("ERROR: feeder %s: refresh vision: %v", f.id, err)
		} else {
			f.correction = &c
		}
	}

	return res, nil
}

func (f *DragFeeder) drag(h machine.Head, start, end coord.Location) error {
	safeZ := h.SafeZ().In(start.Units)

	if err := h.MoveToSafeZ(1); err != nil {
		return err
	}
	if err := h.MoveTo(start.WithZ(safeZ), 1); err != nil {
		return err
	}
	if f.opt.Pin != nil {
		if err := f.opt.Pin.Actuate(true); err != nil {
			return err
		}
	}
	if err := h.MoveTo(start, 1); err != nil {
		return err
	}
	if err := h.MoveTo(end, f.opt.FeedSpeed); err != nil {
		return err
	}
	if f.opt.Pin != nil {
		if err := f.opt.Pin.Actuate(false); err != nil {
			return err
		}
	}
	return h.MoveToSafeZ(1)
}

// locate returns the offset from where the part should be to where vision
// found it, so that subtracting it from a nominal location corrects it.
func (f *DragFeeder) locate(h machine.Head, at coord.Location) (coord.Location, error) {
	cam := h.Camera()
	if cam == nil || cam.Vision() == nil {
		return coord.Location{}, machine.Fatal(fmt.Errorf("feeder %s on head %s: %w", f.id, h.ID(), ErrNoCamera))
	}

	if err := h.MoveToSafeZ(1); err != nil {
		return coord.Location{}, err
	}
	if err := cam.MoveTo(at.WithZ(h.SafeZ().In(at.Units)), 1); err != nil {
		return coord.Location{}, err
	}

	img, err := cam.Capture()
	if err != nil {
		return coord.Location{}, fmt.Errorf("feeder %s: capture: %w", f.id, err)
	}
	matches, err := cam.Vision().LocateTemplateMatches(img, f.opt.Template, f.opt.Threshold)
	if err != nil {
		return coord.Location{}, fmt.Errorf("feeder %s: %w", f.id, err)
	}
	if len(matches) == 0 {
		return coord.Location{}, fmt.Errorf("feeder %s: %w", f.id, vision.ErrNoMatch)
	}

	off := vision.Offset(img.Bounds(), matches[0], cam.UnitsPerPixel())
	return coord.Location{Units: off.Units, X: -off.X, Y: -off.Y}.ConvertTo(at.Units), nil
}
