package surface

import (
	"testing"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMesh_OffsetZ(t *testing.T) {
	// rise of 0.3 over 100 in X, flat in Y
	probes := []coord.Point{
		{X: 0, Y: 0, Z: 0},
		{X: 0, Y: 100, Z: 0},
		{X: 100, Y: 0, Z: 0.3},
		{X: 100, Y: 100, Z: 0.3},
	}

	mesh, err := NewMesh(probes)
	require.NoError(t, err)

	ok, z := mesh.OffsetZ(50, 50)
	assert.True(t, ok)
	assert.InDelta(t, 0.15, z, 1e-9)

	ok, z = mesh.OffsetZ(100, 0)
	assert.True(t, ok)
	assert.InDelta(t, 0.3, z, 1e-9)

	ok, _ = mesh.OffsetZ(150, 50)
	assert.False(t, ok)
}

func TestNewMesh_TooFewPoints(t *testing.T) {
	_, err := NewMesh([]coord.Point{{}, {X: 1}})
	assert.Error(t, err)
}

func TestRelative(t *testing.T) {
	in := []coord.Point{{Z: -10}, {Z: -10.5}}
	out := Relative(-10, in)
	assert.Equal(t, []coord.Point{{Z: 0}, {Z: -0.5}}, out)
	assert.Equal(t, -10.0, in[0].Z)
}

func TestFlat(t *testing.T) {
	ok, z := Flat(0.2).OffsetZ(1000, -1000)
	assert.True(t, ok)
	assert.Equal(t, 0.2, z)
}
