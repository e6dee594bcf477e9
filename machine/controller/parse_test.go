package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBanner(t *testing.T) {
	v, ok, err := parseBanner("!0 = 1.25")
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 1.25, v)

	_, ok, _ = parseBanner("ok")
	assert.False(t, ok)

	_, ok, err = parseBanner("!0 = beta")
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrInvalidBanner)
}

func TestParseProbe(t *testing.T) {
	res, err := parseProbe("[PRB:1.000,2.500,-3.250:1]")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1.0, res.X)
	assert.Equal(t, 2.5, res.Y)
	assert.Equal(t, -3.25, res.Z)

	res, err = findProbe([]string{"garbage", "[PRB:0,0,-10:0]", "ok"})
	require.NoError(t, err)
	assert.False(t, res.Valid)

	_, err = findProbe([]string{"ok"})
	assert.Error(t, err)
}
