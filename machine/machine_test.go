package machine_test

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/machine/sim"
)

func mm(x, y, z, r float64) coord.Location { return coord.NewLocation(coord.Millimeters, x, y, z, r) }

func TestMachine_Ready(t *testing.T) {
	var m machine.Machine
	assert.ErrorIs(t, m.Ready(), machine.ErrNoDriver)

	d := sim.NewDriver(coord.Millimeters)
	m.Driver = d
	assert.ErrorIs(t, m.Ready(), machine.ErrNoHeads)

	m.Heads = append(m.Heads, machine.NewReferenceHead(d, machine.HeadOptions{ID: "h1"}))
	assert.NoError(t, m.Ready())

	d.SetConnected(false)
	assert.ErrorIs(t, m.Ready(), machine.ErrNotConnected)
}

func TestMachine_Home(t *testing.T) {
	d := sim.NewDriver(coord.Millimeters)
	m := machine.NewMachine(d)
	m.Heads = append(m.Heads, machine.NewReferenceHead(d, machine.HeadOptions{
		ID:    "h1",
		SafeZ: coord.Length{Value: 5, Units: coord.Millimeters},
	}))

	require.NoError(t, m.Home())
	assert.Equal(t, []string{"Home", "MoveTo " + mm(0, 0, 5, 0).String()}, d.Calls())

	d.FailOn("Home", errors.New("limit switch"))
	assert.Error(t, m.Home())
}

func TestMachine_Lookup(t *testing.T) {
	d := sim.NewDriver(coord.Millimeters)
	m := machine.NewMachine(d)
	h := machine.NewReferenceHead(d, machine.HeadOptions{ID: "h1"})
	m.Heads = append(m.Heads, h)

	assert.Equal(t, machine.Head(h), m.Head("h1"))
	assert.Nil(t, m.Head("h2"))
	assert.Nil(t, m.Feeder("f1"))
}

func TestReferenceHead_SoftLimits(t *testing.T) {
	d := sim.NewDriver(coord.Millimeters)
	h := machine.NewReferenceHead(d, machine.HeadOptions{
		ID:     "h1",
		Limits: machine.Limits{Min: mm(0, 0, 0, 0), Max: mm(100, 100, 0, 0)},
	})

	assert.NoError(t, h.MoveTo(mm(50, 50, 0, 0), 1))
	assert.ErrorIs(t, h.MoveTo(mm(150, 50, 0, 0), 1), machine.ErrSoftLimit)
	assert.ErrorIs(t, h.MoveTo(coord.NewLocation(coord.Inches, 5, 1, 0, 0), 1), machine.ErrSoftLimit)

	assert.True(t, h.CanPickAndPlace(nil, mm(1, 1, 0, 0), mm(99, 99, 0, 0)))
	assert.False(t, h.CanPickAndPlace(nil, mm(1, 1, 0, 0), mm(99, 101, 0, 0)))
	assert.Len(t, d.Moves(), 1)
}

func TestReferenceHead_MoveToSafeZ(t *testing.T) {
	d := sim.NewDriver(coord.Millimeters)
	h := machine.NewReferenceHead(d, machine.HeadOptions{
		ID:    "h1",
		SafeZ: coord.Length{Value: 0.5, Units: coord.Inches},
	})

	require.NoError(t, h.MoveTo(mm(10, 20, -3, 45), 1))
	require.NoError(t, h.MoveToSafeZ(1))
	assert.Equal(t, mm(10, 20, 12.7, 45), d.Location())
}

func TestReferenceHead_PickPlace(t *testing.T) {
	d := sim.NewDriver(coord.Millimeters)
	h := machine.NewReferenceHead(d, machine.HeadOptions{ID: "h1"})

	require.NoError(t, h.Pick(nil, nil, mm(0, 0, 0, 0)))
	assert.True(t, d.Vacuum())
	require.NoError(t, h.Place(nil, mm(0, 0, 0, 0)))
	assert.False(t, d.Vacuum())

	a := machine.DriverActuator{Name: "drag", Driver: d}
	require.NoError(t, a.Actuate(true))
	assert.True(t, d.Output("drag"))
}

func TestReferenceCamera(t *testing.T) {
	d := sim.NewDriver(coord.Millimeters)
	h := machine.NewReferenceHead(d, machine.HeadOptions{ID: "h1"})
	cam := machine.NewReferenceCamera(h, nil, nil, machine.CameraOptions{
		ID:     "cam",
		Offset: mm(-20, 5, 0, 0),
	})
	assert.Equal(t, machine.Camera(cam), h.Camera())

	require.NoError(t, cam.MoveTo(mm(100, 100, 3, 0), 1))
	assert.Equal(t, mm(120, 95, 3, 0), d.Location())

	_, err := cam.Capture()
	assert.ErrorIs(t, err, machine.ErrNoImageSource)

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	cam = machine.NewReferenceCamera(h, machine.ImageSourceFunc(func() (image.Image, error) { return img, nil }), nil, machine.CameraOptions{})
	res, err := cam.Capture()
	require.NoError(t, err)
	assert.Equal(t, image.Image(img), res)
}

func TestProbeGrid(t *testing.T) {
	d := sim.NewDriver(coord.Millimeters)
	d.Surface = func(x, y float64) float64 { return -1 - x/100 }
	m := machine.NewMachine(d)
	h := machine.NewReferenceHead(d, machine.HeadOptions{ID: "h1", SafeZ: coord.Length{Value: 5}})
	m.Heads = append(m.Heads, h)

	pts, err := m.ProbeGrid(h, machine.ProbeGridOptions{
		Origin:      mm(10, 10, 0, 0),
		DistanceX:   20,
		DistanceY:   10,
		Granularity: 10,
		MaxTravel:   20,
		FeedRate:    100,
	})
	require.NoError(t, err)
	require.Len(t, pts, 6)

	// serpentine: second row runs backwards
	assert.Equal(t, []float64{10, 20, 30, 30, 20, 10}, []float64{pts[0].X, pts[1].X, pts[2].X, pts[3].X, pts[4].X, pts[5].X})
	assert.InDelta(t, -1.3, pts[2].Z, 1e-9)
	assert.InDelta(t, 20, pts[5].Y, 1e-9)

	d.Surface = nil
	_, err = m.ProbeGrid(h, machine.ProbeGridOptions{Origin: mm(0, 0, 0, 0), Granularity: 1, MaxTravel: 1})
	assert.Error(t, err)
}

func TestFatal(t *testing.T) {
	base := errors.New("boom")
	assert.Nil(t, machine.Fatal(nil))
	assert.False(t, machine.IsFatal(base))

	err := fmt.Errorf("feed: %w", machine.Fatal(base))
	assert.True(t, machine.IsFatal(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "feed: boom", err.Error())
}
