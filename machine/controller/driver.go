package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/gcode"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/metrics"
)

var (
	ErrNoBanner         = errors.New("controller did not announce a version")
	ErrVersionTooOld    = errors.New("controller version too old")
	ErrPortBusy         = errors.New("port in use by another process")
	ErrAlreadyConnected = errors.New("controller already connected")
	ErrUnknownActuator  = errors.New("unknown actuator")
)

// State is the connection state of a Driver.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ActuatorCommands are the lines sent to switch a named actuator.
type ActuatorCommands struct {
	On, Off string
}

// Commands is the controller dialect.
type Commands struct {
	Probe           string
	VersionQuery    string
	Dwell           string
	Home            string
	DisableSteppers string
	ZeroAxes        string
	Pick            string
	Place           string

	Actuators map[string]ActuatorCommands
}

// DefaultCommands returns the stock command set.
func DefaultCommands() Commands {
	return Commands{
		Probe:           "",
		VersionQuery:    "!0",
		Dwell:           "G4 P0",
		Home:            "G28.2 X0 Y0 Z0",
		DisableSteppers: "M84",
		ZeroAxes:        "G92 X0 Y0 Z0 A0",
		Pick:            "M4",
		Place:           "M5",
	}
}

// Config configures a Driver. Zero fields take the defaults below.
type Config struct {
	Port string
	Baud int

	// ReadTimeout bounds each transport read so the reader goroutine can
	// notice a disconnect.
	ReadTimeout time.Duration

	// ConnectTimeout is how long each handshake attempt waits for a banner.
	ConnectTimeout time.Duration

	// VersionRetries is the number of version queries sent after the
	// initial probe goes unanswered.
	VersionRetries int
	MinVersion     float64

	// CommandTimeout bounds the wait for a completion marker. Negative
	// waits forever.
	CommandTimeout time.Duration

	Units coord.LengthUnit

	// FeedRate is the feed, in Units per minute, for a speed of 1.
	FeedRate float64

	Commands Commands
}

func (c Config) withDefaults() Config {
	if c.Baud == 0 {
		c.Baud = 115200
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 3 * time.Second
	}
	if c.VersionRetries == 0 {
		c.VersionRetries = 3
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = time.Minute
	}
	if c.CommandTimeout < 0 {
		c.CommandTimeout = 0
	}
	if c.FeedRate == 0 {
		c.FeedRate = 3000
	}
	if c.Commands.Dwell == "" {
		cmds := DefaultCommands()
		cmds.Actuators = c.Commands.Actuators
		c.Commands = cmds
	}
	return c
}

// Opener opens the transport for a Config.
type Opener func(Config) (io.ReadWriteCloser, error)

// Driver speaks the line protocol of a pick-and-place motion controller.
type Driver struct {
	cfg  Config
	open Opener

	// moveMx is held from reading pos until it is updated by a move.
	moveMx sync.Mutex

	mx      sync.Mutex
	state   State
	conn    *Conn
	pos     coord.Location
	version float64
}

var _ machine.Driver = &Driver{}

// NewDriver returns a disconnected Driver. A nil open uses OpenSerial.
func NewDriver(cfg Config, open Opener) *Driver {
	if open == nil {
		open = OpenSerial
	}
	cfg = cfg.withDefaults()
	return &Driver{
		cfg:  cfg,
		open: open,
		pos:  coord.Location{Units: cfg.Units},
	}
}

func (d *Driver) State() State {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.state
}
func (d *Driver) Connected() bool { return d.State() == Connected }

// Version is the version announced during the last handshake.
func (d *Driver) Version() float64 {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.version
}

func (d *Driver) Units() coord.LengthUnit { return d.cfg.Units }

func (d *Driver) Location() coord.Location {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.pos
}

func (d *Driver) setState(s State) {
	d.mx.Lock()
	d.state = s
	d.mx.Unlock()
}

// Connect opens the transport, waits for the version banner and resets the
// controller to a known state.
func (d *Driver) Connect(ctx context.Context) error {
	d.mx.Lock()
	if d.state != Disconnected {
		d.mx.Unlock()
		return ErrAlreadyConnected
	}
	d.state = Connecting
	d.mx.Unlock()

	rw, err := d.open(d.cfg)
	if err != nil {
		d.setState(Disconnected)
		return fmt.Errorf("open %s: %w", d.cfg.Port, err)
	}

	conn := NewConn(rw)
	version, err := d.handshake(ctx, conn)
	if err == nil {
		// replies to the probe and queries must not complete a later command
		drain(conn, d.cfg.ReadTimeout)
	}
	if err == nil && version < d.cfg.MinVersion {
		err = fmt.Errorf("%w: got %g, need %g", ErrVersionTooOld, version, d.cfg.MinVersion)
	}
	if err != nil {
		conn.Close()
		d.setState(Disconnected)
		return err
	}

	d.mx.Lock()
	d.conn = conn
	d.version = version
	d.state = Connected
	d.pos = coord.Location{Units: d.cfg.Units}
	d.mx.Unlock()

	// the controller may have been left running by a previous session
	for _, cmd := range []string{d.cfg.Commands.DisableSteppers, d.cfg.Commands.ZeroAxes} {
		if cmd == "" {
			continue
		}
		if _, err := d.command(cmd); err != nil {
			d.Disconnect()
			return fmt.Errorf("reset controller: %w", err)
		}
	}

	log.Printf("controller connected on %s (version %g)", d.cfg.Port, version)
	return nil
}

func (d *Driver) handshake(ctx context.Context, conn *Conn) (float64, error) {
	for attempt := 0; attempt <= d.cfg.VersionRetries; attempt++ {
		query := d.cfg.Commands.VersionQuery
		if attempt == 0 {
			query = d.cfg.Commands.Probe
		}
		if err := conn.WriteLine(query); err != nil {
			return 0, err
		}

		t := time.NewTimer(d.cfg.ConnectTimeout)
	wait:
		for {
			select {
			case line := <-conn.Unsolicited():
				v, ok, err := parseBanner(line)
				if !ok {
					continue
				}
				t.Stop()
				return v, err
			case <-t.C:
				break wait
			case <-ctx.Done():
				t.Stop()
				return 0, ctx.Err()
			}
		}
		log.Printf("no version banner from %s (attempt %d)", d.cfg.Port, attempt+1)
	}
	return 0, ErrNoBanner
}

// drain discards unsolicited lines until none arrive for quiet.
func drain(conn *Conn, quiet time.Duration) {
	t := time.NewTimer(quiet)
	defer t.Stop()
	for {
		select {
		case <-conn.Unsolicited():
			t.Reset(quiet)
		case <-t.C:
			return
		}
	}
}

// Disconnect closes the session. The reader goroutine is joined before the
// transport is released.
func (d *Driver) Disconnect() error {
	d.mx.Lock()
	conn := d.conn
	d.conn = nil
	d.state = Disconnected
	d.mx.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (d *Driver) command(cmd string) (Response, error) {
	d.mx.Lock()
	conn := d.conn
	d.mx.Unlock()
	if conn == nil {
		return Response{}, machine.Fatal(machine.ErrNotConnected)
	}

	start := time.Now()
	resp, err := conn.Command(cmd, d.cfg.CommandTimeout)
	metrics.CommandDuration.Observe(time.Since(start).Seconds())

	var cmdErr *CommandError
	switch {
	case err == nil:
	case errors.As(err, &cmdErr):
		metrics.CommandErrors.WithLabelValues("rejected").Inc()
		log.Println("ERROR:", err)
	case errors.Is(err, ErrTimeout):
		metrics.CommandErrors.WithLabelValues("timeout").Inc()
		// a late reply would complete the next command
		log.Println("ERROR:", err)
		d.drop(conn)
		return resp, machine.Fatal(err)
	default:
		metrics.CommandErrors.WithLabelValues("closed").Inc()
		d.drop(conn)
		return resp, machine.Fatal(err)
	}
	return resp, err
}

// drop ends the session on conn if it is still the current one.
func (d *Driver) drop(conn *Conn) {
	d.mx.Lock()
	if d.conn != conn {
		d.mx.Unlock()
		return
	}
	d.conn = nil
	d.state = Disconnected
	d.mx.Unlock()

	if err := conn.Close(); err != nil {
		log.Println("ERROR: close controller:", err)
	}
}

// motion sends cmd followed by a dwell so it returns once the move has
// physically finished.
func (d *Driver) motion(cmd string) (Response, error) {
	resp, err := d.command(cmd)
	if err != nil {
		return resp, err
	}
	if d.cfg.Commands.Dwell == "" {
		return resp, nil
	}
	_, err = d.command(d.cfg.Commands.Dwell)
	return resp, err
}

func changed(from, to float64) bool {
	return !math.IsNaN(to) && math.Abs(from-to) > 1e-6
}

// MoveTo moves to loc at speed (0,1] of the configured feed rate. Only
// axes that differ from the last commanded position are sent; NaN leaves
// an axis where it is.
func (d *Driver) MoveTo(loc coord.Location, speed float64) error {
	d.moveMx.Lock()
	defer d.moveMx.Unlock()

	loc = loc.ConvertTo(d.cfg.Units)
	cur := d.Location()

	b := gcode.Block{{W: 'G', Arg: 1}}
	next := cur
	axes := []struct {
		w        byte
		from, to float64
		set      *float64
	}{
		{'X', cur.X, loc.X, &next.X},
		{'Y', cur.Y, loc.Y, &next.Y},
		{'Z', cur.Z, loc.Z, &next.Z},
		{'A', cur.Rotation, loc.Rotation, &next.Rotation},
	}
	for _, a := range axes {
		if !changed(a.from, a.to) {
			continue
		}
		b = append(b, gcode.Word{W: a.w, Arg: a.to})
		*a.set = a.to
	}
	if len(b) == 1 {
		return nil
	}

	if speed <= 0 || speed > 1 {
		speed = 1
	}
	b = append(b, gcode.Word{W: 'F', Arg: d.cfg.FeedRate * speed})

	if _, err := d.motion(b.String()); err != nil {
		return err
	}

	d.mx.Lock()
	d.pos = next
	d.mx.Unlock()
	return nil
}

func (d *Driver) Home() error {
	d.moveMx.Lock()
	defer d.moveMx.Unlock()

	if _, err := d.motion(d.cfg.Commands.Home); err != nil {
		return err
	}
	d.mx.Lock()
	d.pos = coord.Location{Units: d.cfg.Units}
	d.mx.Unlock()
	return nil
}

func (d *Driver) Pick() error {
	_, err := d.motion(d.cfg.Commands.Pick)
	return err
}

func (d *Driver) Place() error {
	_, err := d.motion(d.cfg.Commands.Place)
	return err
}

func (d *Driver) Actuate(name string, on bool) error {
	a, ok := d.cfg.Commands.Actuators[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActuator, name)
	}
	cmd := a.Off
	if on {
		cmd = a.On
	}
	_, err := d.motion(cmd)
	return err
}

// Probe lowers Z by up to maxTravel at feedRate until the probe input
// triggers. Absolute positioning is restored however the probe ends.
func (d *Driver) Probe(maxTravel, feedRate float64) (_ machine.ProbeResult, err error) {
	d.moveMx.Lock()
	defer d.moveMx.Unlock()

	b := gcode.Block{
		{W: 'G', Arg: 91},
		{W: 'G', Arg: 38.2},
		{W: 'Z', Arg: -math.Abs(maxTravel)},
		{W: 'F', Arg: feedRate},
	}
	defer func() {
		if d.State() != Connected {
			return
		}
		if _, aerr := d.command("G90"); aerr != nil && err == nil {
			err = aerr
		}
	}()
	resp, err := d.motion(b.String())
	if err != nil {
		return machine.ProbeResult{}, err
	}

	res, err := findProbe(resp.Lines)
	if err != nil {
		return machine.ProbeResult{}, err
	}

	d.mx.Lock()
	d.pos.Z = res.Z
	d.mx.Unlock()

	return *res, nil
}
