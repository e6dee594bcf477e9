package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/pcb"
)

func mm(x, y float64) coord.Location { return coord.NewLocation(coord.Millimeters, x, y, 0, 0) }

func transform(board, local coord.Location) coord.Point {
	return coord.RotateTranslateScalePoint(local.Point(), board.Rotation, board.X, board.Y, 1)
}

func TestCompute_QuarterTurn(t *testing.T) {
	loc, err := Compute(mm(0, 0), mm(100, 0), mm(10, 10), mm(10, 110), DefaultTolerance)
	require.NoError(t, err)

	assert.InDelta(t, -90, loc.Rotation, 1e-9)
	assert.InDelta(t, 10, loc.X, 1e-9)
	assert.InDelta(t, 10, loc.Y, 1e-9)
	assert.Equal(t, 0.0, loc.Z)

	p := transform(loc, mm(0, 0))
	assert.InDelta(t, 10, p.X, 1e-9)
	assert.InDelta(t, 10, p.Y, 1e-9)
	p = transform(loc, mm(100, 0))
	assert.InDelta(t, 10, p.X, 1e-9)
	assert.InDelta(t, 110, p.Y, 1e-9)
}

func TestCompute_General(t *testing.T) {
	for _, rot := range []float64{-150, -30, 0, 12.5, 45, 179} {
		board := coord.NewLocation(coord.Millimeters, 50, 20, 0, rot)
		p1, p2 := mm(12, 30), mm(80, 5)
		q1 := transform(board, p1)
		q2 := transform(board, p2)

		loc, err := Compute(p1, p2, mm(q1.X, q1.Y), mm(q2.X, q2.Y), DefaultTolerance)
		require.NoError(t, err, "rotation %g", rot)
		assert.InDelta(t, 50, loc.X, 1e-6, "rotation %g", rot)
		assert.InDelta(t, 20, loc.Y, 1e-6, "rotation %g", rot)
		assert.InDelta(t, 0, coord.NormalizeAngle(loc.Rotation-rot), 1e-6, "rotation %g", rot)
	}
}

func TestCompute_Units(t *testing.T) {
	// nominal in inches, observed in millimeters
	p1 := coord.NewLocation(coord.Inches, 0, 0, 0, 0)
	p2 := coord.NewLocation(coord.Inches, 1, 0, 0, 0)
	loc, err := Compute(p1, p2, mm(5, 5), mm(30.4, 5), DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, coord.Millimeters, loc.Units)
	assert.InDelta(t, 5, loc.X, 1e-9)
	assert.InDelta(t, 0, loc.Rotation, 1e-9)
}

func TestCompute_NoIntersection(t *testing.T) {
	// nominal points are 100 apart, observed 150 apart
	_, err := Compute(mm(0, 0), mm(100, 0), mm(10, 10), mm(160, 10), DefaultTolerance)
	assert.ErrorIs(t, err, ErrNoIntersection)
	var calErr *CalibrationError
	require.ErrorAs(t, err, &calErr)
	assert.InDelta(t, 150, calErr.Distance, 1e-9)

	// within tolerance is accepted
	_, err = Compute(mm(0, 0), mm(100, 0), mm(10, 10), mm(110.05, 10), DefaultTolerance)
	assert.NoError(t, err)

	_, err = Compute(mm(0, 0), mm(100, 0), mm(10, 10), mm(10, 10), DefaultTolerance)
	assert.ErrorIs(t, err, ErrCoincident)
}

func newBoard() *pcb.BoardLocation {
	b := &pcb.Board{Name: "b", Placements: []*pcb.Placement{
		{ID: "FID1", Location: mm(0, 0), Type: pcb.Fiducial},
		{ID: "FID2", Location: mm(100, 0), Type: pcb.Fiducial},
	}}
	return pcb.NewBoardLocation(b, coord.NewLocation(coord.Millimeters, 0, 0, 1.6, 0), pcb.Top)
}

func TestProcedure(t *testing.T) {
	bl := newBoard()
	p := NewProcedure(bl)
	assert.Equal(t, CaptureA, p.Step())

	require.NoError(t, p.Capture(mm(10, 10)))
	require.NoError(t, p.Select(bl.Board.Placement("FID1")))
	require.NoError(t, p.Capture(mm(10, 110)))
	require.NoError(t, p.Select(bl.Board.Placement("FID2")))
	assert.Equal(t, Apply, p.Step())

	loc, err := p.Apply()
	require.NoError(t, err)
	assert.Equal(t, Done, p.Step())
	assert.InDelta(t, -90, loc.Rotation, 1e-9)
	assert.Equal(t, 1.6, bl.Location.Z, "board height kept")
	assert.InDelta(t, 10, bl.Location.X, 1e-9)

	res, ok := p.Result()
	assert.True(t, ok)
	assert.Equal(t, loc, res)

	p.Reset()
	assert.Equal(t, CaptureA, p.Step())
	_, ok = p.Result()
	assert.False(t, ok)
}

func TestProcedure_OutOfOrder(t *testing.T) {
	bl := newBoard()
	p := NewProcedure(bl)

	assert.ErrorIs(t, p.Select(bl.Board.Placement("FID1")), ErrWrongStep)
	_, err := p.Apply()
	assert.ErrorIs(t, err, ErrWrongStep)

	require.NoError(t, p.Capture(mm(10, 10)))
	assert.ErrorIs(t, p.Capture(mm(10, 10)), ErrWrongStep)
	assert.ErrorIs(t, p.Select(&pcb.Placement{ID: "FID1"}), ErrUnknownPlacement)
	require.NoError(t, p.Select(bl.Board.Placement("FID1")))
	require.NoError(t, p.Capture(mm(10, 110)))
	assert.ErrorIs(t, p.Select(bl.Board.Placement("FID1")), ErrSamePlacement)
	assert.Equal(t, SelectB, p.Step())
}

func TestProcedure_ApplyFails(t *testing.T) {
	bl := newBoard()
	p := NewProcedure(bl)
	require.NoError(t, p.Capture(mm(10, 10)))
	require.NoError(t, p.Select(bl.Board.Placement("FID1")))
	require.NoError(t, p.Capture(mm(500, 10)))
	require.NoError(t, p.Select(bl.Board.Placement("FID2")))

	_, err := p.Apply()
	assert.ErrorIs(t, err, ErrNoIntersection)
	assert.Equal(t, Apply, p.Step())
	assert.Equal(t, 0.0, bl.Location.X, "location untouched")
}
