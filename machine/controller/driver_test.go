package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/machine/sim"
)

func newTestDriver(t *testing.T, cfg Config, opt sim.Options) (*Driver, *sim.Controller) {
	t.Helper()
	ctrl := sim.NewController(opt)
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 50 * time.Millisecond
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = time.Second
	}
	d := NewDriver(cfg, func(Config) (io.ReadWriteCloser, error) { return ctrl, nil })
	t.Cleanup(func() { d.Disconnect() })
	return d, ctrl
}

func connect(t *testing.T, cfg Config, opt sim.Options) (*Driver, *sim.Controller) {
	t.Helper()
	d, ctrl := newTestDriver(t, cfg, opt)
	require.NoError(t, d.Connect(context.Background()))
	return d, ctrl
}

func last(ctrl *sim.Controller, n int) []string {
	r := ctrl.Received()
	if len(r) < n {
		return r
	}
	return r[len(r)-n:]
}

func TestDriver_Connect(t *testing.T) {
	d, ctrl := connect(t, Config{MinVersion: 1}, sim.Options{Version: "1.2"})

	assert.True(t, d.Connected())
	assert.Equal(t, Connected, d.State())
	assert.Equal(t, 1.2, d.Version())
	assert.Equal(t, []string{"", "M84", "G92 X0 Y0 Z0 A0"}, ctrl.Received())

	assert.ErrorIs(t, d.Connect(context.Background()), ErrAlreadyConnected)
}

func TestDriver_ConnectRetry(t *testing.T) {
	d, ctrl := connect(t, Config{ConnectTimeout: 20 * time.Millisecond}, sim.Options{AnnounceOnQuery: true})

	assert.True(t, d.Connected())
	assert.Equal(t, []string{"", "!0"}, ctrl.Received()[:2])
}

func TestDriver_NoBanner(t *testing.T) {
	d, ctrl := newTestDriver(t, Config{ConnectTimeout: 10 * time.Millisecond, VersionRetries: 2}, sim.Options{Silent: true})

	err := d.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoBanner)
	assert.Equal(t, Disconnected, d.State())
	assert.Equal(t, []string{"", "!0", "!0"}, ctrl.Received())
}

func TestDriver_VersionTooOld(t *testing.T) {
	d, _ := newTestDriver(t, Config{MinVersion: 1}, sim.Options{Version: "0.5"})

	err := d.Connect(context.Background())
	assert.ErrorIs(t, err, ErrVersionTooOld)
	assert.False(t, d.Connected())
}

func TestDriver_InvalidBanner(t *testing.T) {
	d, _ := newTestDriver(t, Config{}, sim.Options{Version: "dev"})

	assert.ErrorIs(t, d.Connect(context.Background()), ErrInvalidBanner)
}

func TestDriver_ConnectCanceled(t *testing.T) {
	d, _ := newTestDriver(t, Config{ConnectTimeout: time.Minute}, sim.Options{Silent: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Connect(ctx), context.DeadlineExceeded)
}

func TestDriver_OpenFailed(t *testing.T) {
	d := NewDriver(Config{Port: "/dev/null0"}, func(Config) (io.ReadWriteCloser, error) {
		return nil, ErrPortBusy
	})
	assert.ErrorIs(t, d.Connect(context.Background()), ErrPortBusy)
	assert.Equal(t, Disconnected, d.State())
}

func TestDriver_MoveTo(t *testing.T) {
	d, ctrl := connect(t, Config{FeedRate: 3000}, sim.Options{})

	require.NoError(t, d.MoveTo(coord.NewLocation(coord.Millimeters, 10, 0, 0, 0), 1))
	assert.Equal(t, []string{"G1 X10 F3000", "G4 P0"}, last(ctrl, 2))

	require.NoError(t, d.MoveTo(coord.NewLocation(coord.Millimeters, 10, 5, 0, 90), 0.5))
	assert.Equal(t, []string{"G1 Y5 A90 F1500", "G4 P0"}, last(ctrl, 2))

	n := len(ctrl.Received())
	require.NoError(t, d.MoveTo(coord.NewLocation(coord.Millimeters, 10, 5, 0, 90), 1))
	assert.Len(t, ctrl.Received(), n, "no-op move must not be sent")

	assert.Equal(t, coord.NewLocation(coord.Millimeters, 10, 5, 0, 90), ctrl.Position())
	assert.Equal(t, coord.NewLocation(coord.Millimeters, 10, 5, 0, 90), d.Location())
}

func TestDriver_MoveToConverts(t *testing.T) {
	d, ctrl := connect(t, Config{}, sim.Options{})

	require.NoError(t, d.MoveTo(coord.NewLocation(coord.Inches, 1, 0, 0, 0), 1))
	assert.Equal(t, "G1 X25.4 F3000", last(ctrl, 2)[0])
}

func TestDriver_PickPlace(t *testing.T) {
	d, ctrl := connect(t, Config{}, sim.Options{})

	require.NoError(t, d.Pick())
	assert.Equal(t, []string{"M4", "G4 P0"}, last(ctrl, 2))
	assert.True(t, ctrl.Vacuum())

	require.NoError(t, d.Place())
	assert.Equal(t, []string{"M5", "G4 P0"}, last(ctrl, 2))
	assert.False(t, ctrl.Vacuum())
}

func TestDriver_Rejected(t *testing.T) {
	d, _ := connect(t, Config{}, sim.Options{Reject: map[string]string{"M4": "vacuum fault"}})

	err := d.Pick()
	var cmdErr *CommandError
	assert.True(t, errors.As(err, &cmdErr))
	assert.False(t, machine.IsFatal(err))
	assert.True(t, d.Connected())
}

func TestDriver_Actuate(t *testing.T) {
	cfg := Config{Commands: Commands{Actuators: map[string]ActuatorCommands{
		"drag": {On: "M8", Off: "M9"},
	}}}
	d, ctrl := connect(t, cfg, sim.Options{})

	require.NoError(t, d.Actuate("drag", true))
	assert.Equal(t, []string{"M8", "G4 P0"}, last(ctrl, 2))
	require.NoError(t, d.Actuate("drag", false))
	assert.Equal(t, []string{"M9", "G4 P0"}, last(ctrl, 2))

	assert.ErrorIs(t, d.Actuate("blower", true), ErrUnknownActuator)
}

func TestDriver_Probe(t *testing.T) {
	d, _ := connect(t, Config{}, sim.Options{Surface: func(x, y float64) float64 { return -4 }})

	res, err := d.Probe(10, 100)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.InDelta(t, -4, res.Z, coord.Epsilon)
	assert.InDelta(t, -4, d.Location().Z, coord.Epsilon)

	// already on the surface, nothing left to hit
	d2, _ := connect(t, Config{}, sim.Options{})
	res, err = d2.Probe(10, 100)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestDriver_ProbeRestoresAbsolute(t *testing.T) {
	d, ctrl := connect(t, Config{}, sim.Options{Reject: map[string]string{"G91 G38.2": "probe fault"}})

	_, err := d.Probe(10, 100)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, []string{"G90"}, last(ctrl, 1))
	assert.True(t, d.Connected())

	require.NoError(t, d.MoveTo(coord.NewLocation(coord.Millimeters, 0, 0, 5, 0), 1))
	assert.Equal(t, coord.NewLocation(coord.Millimeters, 0, 0, 5, 0), ctrl.Position())
}

func TestDriver_TimeoutDisconnects(t *testing.T) {
	d, ctrl := connect(t, Config{CommandTimeout: 30 * time.Millisecond}, sim.Options{Ignore: []string{"M4"}})

	err := d.Pick()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, machine.IsFatal(err))
	assert.Equal(t, Disconnected, d.State())

	_, err = ctrl.Write([]byte("G4 P0\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe, "session must be torn down")
	assert.ErrorIs(t, d.Place(), machine.ErrNotConnected)
}

func TestDriver_ConcurrentMoves(t *testing.T) {
	d, ctrl := connect(t, Config{}, sim.Options{})

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(x float64) {
			defer wg.Done()
			assert.NoError(t, d.MoveTo(coord.NewLocation(coord.Millimeters, x, x, 0, 0), 1))
		}(float64(i))
	}
	wg.Wait()

	assert.Equal(t, ctrl.Position(), d.Location(), "tracked position matches the controller")
}

func TestDriver_Disconnect(t *testing.T) {
	d, ctrl := connect(t, Config{}, sim.Options{})

	require.NoError(t, d.Disconnect())
	assert.False(t, d.Connected())

	_, err := ctrl.Write([]byte("G4 P0\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe, "transport must be closed")

	err = d.MoveTo(coord.NewLocation(coord.Millimeters, 1, 0, 0, 0), 1)
	assert.ErrorIs(t, err, machine.ErrNotConnected)
	assert.True(t, machine.IsFatal(err))

	assert.NoError(t, d.Disconnect())
}
