// Package sim provides an in-memory motion controller that speaks the same
// line protocol as the hardware.
package sim

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/gcode"
)

// Options configure a Controller.
type Options struct {
	// Version is announced as "!0 = <Version>".
	Version string

	// Silent never announces a version.
	Silent bool

	// AnnounceOnQuery only announces in reply to a version query, not to
	// the initial empty probe.
	AnnounceOnQuery bool

	// ReadTimeout is how long Read waits before returning no data.
	ReadTimeout time.Duration

	// Chatter lines are sent ahead of every completion marker.
	Chatter []string

	// Reject maps a command prefix to an error message.
	Reject map[string]string

	// Ignore lists command prefixes that are never answered.
	Ignore []string

	// Surface is the Z height a probe triggers at. Nil never triggers.
	Surface func(x, y float64) float64
}

// Controller implements io.ReadWriteCloser.
type Controller struct {
	opt Options

	mx       sync.Mutex
	vm       *gcode.VM
	inbuf    []byte
	received []string

	out     chan []byte
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

var _ io.ReadWriteCloser = &Controller{}

func NewController(opt Options) *Controller {
	if opt.Version == "" {
		opt.Version = "1.0"
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = 10 * time.Millisecond
	}
	return &Controller{
		opt:    opt,
		vm:     gcode.NewVM(),
		out:    make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

// Received returns every line written so far, in order.
func (c *Controller) Received() []string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]string(nil), c.received...)
}

// Position returns the controller position in millimeters.
func (c *Controller) Position() coord.Location {
	c.mx.Lock()
	defer c.mx.Unlock()
	p, a := c.vm.Pos()
	return coord.NewLocation(coord.Millimeters, p.X, p.Y, p.Z, a)
}

// Vacuum reports whether the nozzle vacuum is on.
func (c *Controller) Vacuum() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.vm.Vacuum()
}

func (c *Controller) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		t := time.NewTimer(c.opt.ReadTimeout)
		defer t.Stop()
		select {
		case c.pending = <-c.out:
		case <-t.C:
			return 0, nil
		case <-c.closed:
			return 0, io.ErrClosedPipe
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Controller) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	c.inbuf = append(c.inbuf, p...)
	for {
		i := strings.IndexByte(string(c.inbuf), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(c.inbuf[:i]))
		c.inbuf = c.inbuf[i+1:]
		c.received = append(c.received, line)
		c.handle(line)
	}
	return len(p), nil
}

func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *Controller) emit(line string) {
	select {
	case c.out <- []byte(line + "\n"):
	default:
	}
}

func (c *Controller) banner() {
	if !c.opt.Silent {
		c.emit("!0 = " + c.opt.Version)
	}
}

func (c *Controller) handle(line string) {
	switch line {
	case "":
		if !c.opt.AnnounceOnQuery {
			c.banner()
		}
		c.emit("ok")
		return
	case "!0":
		c.banner()
		c.emit("ok")
		return
	}

	for _, prefix := range c.opt.Ignore {
		if strings.HasPrefix(line, prefix) {
			return
		}
	}
	for prefix, msg := range c.opt.Reject {
		if strings.HasPrefix(line, prefix) {
			c.emit("error: " + msg)
			return
		}
	}

	b, err := gcode.ParseLine(line)
	if err != nil {
		c.emit("error: " + err.Error())
		return
	}

	if b.Has(gcode.Word{W: 'G', Arg: 38.2}) {
		c.probe(b)
	} else if err := c.vm.Run(b); err != nil {
		c.emit("error: " + err.Error())
		return
	}

	for _, l := range c.opt.Chatter {
		c.emit(l)
	}
	c.emit("ok")
}

// probe moves Z down by the block's Z travel, stopping at the surface.
func (c *Controller) probe(b gcode.Block) {
	p, a := c.vm.Pos()
	_, travel := b.Arg('Z')
	if c.vm.Inches() {
		travel *= 25.4
	}
	if !b.Has(gcode.Word{W: 'G', Arg: 91}) && !c.vm.RelativeMotion() {
		travel -= p.Z
	}

	target := p.Z + travel
	valid := 0
	if c.opt.Surface != nil {
		if s := c.opt.Surface(p.X, p.Y); s <= p.Z && s >= target {
			target = s
			valid = 1
		}
	}
	p.Z = target
	c.vm.SetPos(p, a)
	c.emit(fmt.Sprintf("[PRB:%.3f,%.3f,%.3f:%d]", p.X, p.Y, p.Z, valid))
}
