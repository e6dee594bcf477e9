package machine

import (
	"errors"
	"image"

	"github.com/mastercactapus/gpnp/coord"
)

// ErrNoImageSource is returned by Capture when no frames can be grabbed.
var ErrNoImageSource = errors.New("camera has no image source")

// ImageSource grabs a frame from a physical camera.
type ImageSource interface {
	Capture() (image.Image, error)
}

// ImageSourceFunc adapts a function to ImageSource.
type ImageSourceFunc func() (image.Image, error)

func (fn ImageSourceFunc) Capture() (image.Image, error) { return fn() }

// CameraOptions configure a ReferenceCamera.
type CameraOptions struct {
	ID string

	// Offset is the camera center relative to the nozzle.
	Offset coord.Location

	UnitsPerPixel coord.Location
}

// ReferenceCamera is a camera mounted on a head at a fixed offset.
type ReferenceCamera struct {
	opt    CameraOptions
	head   Head
	source ImageSource
	vision VisionProvider
}

var _ Camera = &ReferenceCamera{}

// NewReferenceCamera creates a camera and, if h is a ReferenceHead, mounts it.
func NewReferenceCamera(h Head, src ImageSource, vp VisionProvider, opt CameraOptions) *ReferenceCamera {
	c := &ReferenceCamera{opt: opt, head: h, source: src, vision: vp}
	if rh, ok := h.(*ReferenceHead); ok {
		rh.SetCamera(c)
	}
	return c
}

func (c *ReferenceCamera) ID() string                     { return c.opt.ID }
func (c *ReferenceCamera) UnitsPerPixel() coord.Location { return c.opt.UnitsPerPixel }
func (c *ReferenceCamera) Vision() VisionProvider         { return c.vision }

// Offset is the camera center relative to the nozzle.
func (c *ReferenceCamera) Offset() coord.Location { return c.opt.Offset }

// MoveTo positions the camera center over loc.
func (c *ReferenceCamera) MoveTo(loc coord.Location, speed float64) error {
	return c.head.MoveTo(loc.SubtractXY(c.opt.Offset), speed)
}

func (c *ReferenceCamera) Capture() (image.Image, error) {
	if c.source == nil {
		return nil, ErrNoImageSource
	}
	return c.source.Capture()
}
