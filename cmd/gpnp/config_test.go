package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine/controller"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "empty.yaml", "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, "serial", cfg.Transport.Type)
	assert.Equal(t, 115200, cfg.Controller.Baud)
	assert.Equal(t, 100*time.Millisecond, cfg.Controller.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.Controller.ConnectTimeout)
	assert.Equal(t, 10.0, cfg.Head.SafeZ)
	assert.Equal(t, 0.1, cfg.AlignTolerance)
	assert.Equal(t, ProbeConfig{Granularity: 10, MaxTravel: 20, FeedRate: 100}, cfg.Probe)

	opt, err := cfg.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, job.ContinueStep, opt.Policy)
	assert.Equal(t, 1.0, opt.Speed)
}

const testConfig = `
addr: ":8080"
units: in
transport:
  type: spjs
  url: ws://bridge:8989/ws
controller:
  port: COM3
  read_timeout: 50ms
  min_version: 1.1
  commands:
    pick: M10
    actuators:
      drag:
        on: M8
        off: M9
engine:
  speed: 0.5
  policy: skip
  home_before_run: true
feeders:
  - type: tray
    id: T1
    part: R0603
    location: {x: 1, y: 2, z: -0.1}
    count_x: 4
    count_y: 2
`

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "gpnp.yaml", testConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "spjs", cfg.Transport.Type)
	assert.Equal(t, "ws://bridge:8989/ws", cfg.Transport.URL)
	require.Len(t, cfg.Feeders, 1)
	assert.Equal(t, "T1", cfg.Feeders[0].ID)
	assert.Equal(t, 4, cfg.Feeders[0].CountX)
	assert.Equal(t, 2.0, cfg.Feeders[0].Location.Y)

	dc, err := cfg.DriverConfig()
	require.NoError(t, err)
	assert.Equal(t, "COM3", dc.Port)
	assert.Equal(t, coord.Inches, dc.Units)
	assert.Equal(t, 50*time.Millisecond, dc.ReadTimeout)
	assert.Equal(t, 1.1, dc.MinVersion)
	assert.Equal(t, "M10", dc.Commands.Pick)
	assert.Equal(t, "M5", dc.Commands.Place)
	assert.Equal(t, controller.DefaultCommands().Dwell, dc.Commands.Dwell)
	assert.Equal(t, controller.ActuatorCommands{On: "M8", Off: "M9"}, dc.Commands.Actuators["drag"])

	opt, err := cfg.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, job.SkipPlacement, opt.Policy)
	assert.Equal(t, 0.5, opt.Speed)
	assert.True(t, opt.HomeBeforeRun)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("GPNP_ADDR", ":7000")
	t.Setenv("GPNP_TRANSPORT_TYPE", "sim")

	cfg, err := LoadConfig(writeFile(t, "gpnp.yaml", "units: mm\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "sim", cfg.Transport.Type)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	cfg, err := LoadConfig(writeFile(t, "gpnp.yaml", "units: furlong\nengine:\n  policy: retry\n"))
	require.NoError(t, err)
	_, err = cfg.DriverConfig()
	assert.Error(t, err)
	_, err = cfg.EngineOptions()
	assert.Error(t, err)
}
