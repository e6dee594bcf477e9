package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/feeder"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/machine/controller"
	"github.com/mastercactapus/gpnp/machine/sim"
	"github.com/mastercactapus/gpnp/metrics"
	"github.com/mastercactapus/gpnp/pcb"
	"github.com/mastercactapus/gpnp/spjs"
	"github.com/mastercactapus/gpnp/surface"
)

// rig is everything built from a Config: the controller, the machine it
// drives and the engine running jobs on it.
type rig struct {
	units   coord.LengthUnit
	driver  *controller.Driver
	spjs    *spjs.Client
	machine *machine.Machine
	head    *machine.ReferenceHead
	camera  *machine.ReferenceCamera
	engine  *job.Engine
	probe   ProbeConfig
}

func openerFor(cfg *Config) (controller.Opener, *spjs.Client, error) {
	switch cfg.Transport.Type {
	case "", "serial":
		return controller.OpenSerial, nil, nil
	case "spjs":
		if cfg.Transport.URL == "" {
			return nil, nil, fmt.Errorf("transport spjs: url required")
		}
		c := spjs.Dial(cfg.Transport.URL)
		return controller.SPJSOpener(c), c, nil
	case "sim":
		z := cfg.Transport.SimSurfaceZ
		return func(controller.Config) (io.ReadWriteCloser, error) {
			return sim.NewController(sim.Options{
				Surface: func(x, y float64) float64 { return z },
			}), nil
		}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport.Type)
}

func newRig(cfg *Config) (*rig, error) {
	u, err := cfg.NativeUnits()
	if err != nil {
		return nil, err
	}
	dc, err := cfg.DriverConfig()
	if err != nil {
		return nil, err
	}
	opt, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	open, client, err := openerFor(cfg)
	if err != nil {
		return nil, err
	}

	r := &rig{units: u, spjs: client, probe: cfg.Probe}
	r.driver = controller.NewDriver(dc, open)
	r.machine = machine.NewMachine(r.driver)

	r.head = machine.NewReferenceHead(r.driver, machine.HeadOptions{
		ID:    cfg.Head.ID,
		SafeZ: coord.Length{Value: cfg.Head.SafeZ, Units: u},
		Limits: machine.Limits{
			Min: cfg.Head.LimitMin.in(u),
			Max: cfg.Head.LimitMax.in(u),
		},
	})
	r.machine.Heads = append(r.machine.Heads, r.head)

	if cfg.Camera.Enabled {
		var src machine.ImageSource
		if cfg.Camera.Frames != "" {
			src, err = newFrameSource(cfg.Camera.Frames)
			if err != nil {
				r.Close()
				return nil, err
			}
		}
		r.camera = machine.NewReferenceCamera(r.head, src, newVisionProvider(), machine.CameraOptions{
			ID:            cfg.Camera.ID,
			Offset:        cfg.Camera.Offset.in(u),
			UnitsPerPixel: cfg.Camera.UnitsPerPixel.in(u),
		})
	}

	for _, fc := range cfg.Feeders {
		f, err := r.newFeeder(fc)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("feeder %s: %w", fc.ID, err)
		}
		r.machine.Feeders = append(r.machine.Feeders, f)
	}

	r.engine = job.NewEngine(r.machine, opt)
	r.engine.AddListener(metrics.JobListener{})
	return r, nil
}

type enabler interface {
	machine.Feeder
	SetEnabled(bool)
}

func (r *rig) newFeeder(fc FeederConfig) (machine.Feeder, error) {
	if fc.ID == "" {
		return nil, fmt.Errorf("id required")
	}
	part := &pcb.Part{ID: fc.Part, Height: coord.Length{Value: fc.Height, Units: r.units}}
	loc := fc.Location.in(r.units)

	var f enabler
	switch fc.Type {
	case "", "static":
		f = feeder.NewStaticFeeder(fc.ID, part, loc)
	case "tray":
		f = feeder.NewTrayFeeder(fc.ID, part, loc, feeder.TrayOptions{
			CountX:  fc.CountX,
			CountY:  fc.CountY,
			Offsets: fc.Offsets.in(r.units),
		})
	case "drag":
		opt := feeder.DragOptions{
			FeedStart: fc.FeedStart.in(r.units),
			FeedEnd:   fc.FeedEnd.in(r.units),
			FeedSpeed: fc.FeedSpeed,
			Threshold: fc.Threshold,
		}
		if fc.Pin != "" {
			opt.Pin = machine.DriverActuator{Name: fc.Pin, Driver: r.driver}
		}
		if fc.Template != "" {
			img, err := loadImage(fc.Template)
			if err != nil {
				return nil, err
			}
			opt.Template = img
		}
		f = feeder.NewDragFeeder(fc.ID, part, loc, opt)
	default:
		return nil, fmt.Errorf("unknown type %q", fc.Type)
	}
	f.SetEnabled(!fc.Disabled)
	return f, nil
}

// ProbeSurface probes a width by height grid starting at the origin of bl
// and sets its surface to the heights found relative to the board Z.
func (r *rig) ProbeSurface(bl *pcb.BoardLocation, width, height float64) (int, error) {
	pts, err := r.machine.ProbeGrid(r.head, machine.ProbeGridOptions{
		Origin:      bl.Location,
		DistanceX:   width,
		DistanceY:   height,
		Granularity: r.probe.Granularity,
		FeedRate:    r.probe.FeedRate,
		MaxTravel:   r.probe.MaxTravel,
	})
	if err != nil {
		return 0, err
	}
	mesh, err := surface.NewMesh(surface.Relative(bl.Location.ConvertTo(r.units).Z, pts))
	if err != nil {
		return 0, err
	}
	bl.Surface = mesh
	return len(pts), nil
}

// Close disconnects the controller and any SPJS bridge.
func (r *rig) Close() {
	if r.driver != nil {
		err := r.driver.Disconnect()
		if err != nil {
			log.Println("ERROR: disconnect:", err)
		}
	}
	if r.spjs != nil {
		r.spjs.Close()
	}
}

func loadImage(name string) (image.Image, error) {
	fd, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	img, _, err := image.Decode(fd)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

// frameSource serves the images of a directory in name order, one per
// capture, wrapping around at the end.
type frameSource struct {
	mx    sync.Mutex
	files []string
	next  int
}

func newFrameSource(dir string) (*frameSource, error) {
	var files []string
	for _, pattern := range []string{"*.png", "*.jpg", "*.jpeg"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, m...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	sort.Strings(files)
	return &frameSource{files: files}, nil
}

func (s *frameSource) Capture() (image.Image, error) {
	s.mx.Lock()
	name := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mx.Unlock()
	return loadImage(name)
}
