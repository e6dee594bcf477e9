package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine/controller"
)

// Config is the daemon configuration. Every location and length is in
// Units unless a section says otherwise.
type Config struct {
	Addr  string `mapstructure:"addr"`
	Units string `mapstructure:"units"`

	Transport  TransportConfig  `mapstructure:"transport"`
	Controller ControllerConfig `mapstructure:"controller"`
	Head       HeadConfig       `mapstructure:"head"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Feeders    []FeederConfig   `mapstructure:"feeders"`

	// AlignTolerance is the allowed mismatch between design and measured
	// fiducial spacing.
	AlignTolerance float64 `mapstructure:"align_tolerance"`
}

type TransportConfig struct {
	// Type is one of "serial", "spjs" or "sim".
	Type string `mapstructure:"type"`
	URL  string `mapstructure:"url"`

	// SimSurfaceZ is the height the simulated probe touches at.
	SimSurfaceZ float64 `mapstructure:"sim_surface_z"`
}

type ControllerConfig struct {
	Port           string        `mapstructure:"port"`
	Baud           int           `mapstructure:"baud"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	VersionRetries int           `mapstructure:"version_retries"`
	MinVersion     float64       `mapstructure:"min_version"`
	FeedRate       float64       `mapstructure:"feed_rate"`

	Commands CommandConfig `mapstructure:"commands"`
}

type CommandConfig struct {
	Probe           string `mapstructure:"probe"`
	VersionQuery    string `mapstructure:"version_query"`
	Dwell           string `mapstructure:"dwell"`
	Home            string `mapstructure:"home"`
	DisableSteppers string `mapstructure:"disable_steppers"`
	ZeroAxes        string `mapstructure:"zero_axes"`
	Pick            string `mapstructure:"pick"`
	Place           string `mapstructure:"place"`

	Actuators map[string]ActuatorConfig `mapstructure:"actuators"`
}

type ActuatorConfig struct {
	On  string `mapstructure:"on"`
	Off string `mapstructure:"off"`
}

type LocationConfig struct {
	X        float64 `mapstructure:"x"`
	Y        float64 `mapstructure:"y"`
	Z        float64 `mapstructure:"z"`
	Rotation float64 `mapstructure:"rotation"`
}

func (l LocationConfig) in(u coord.LengthUnit) coord.Location {
	return coord.NewLocation(u, l.X, l.Y, l.Z, l.Rotation)
}

type HeadConfig struct {
	ID       string         `mapstructure:"id"`
	SafeZ    float64        `mapstructure:"safe_z"`
	LimitMin LocationConfig `mapstructure:"limit_min"`
	LimitMax LocationConfig `mapstructure:"limit_max"`
}

type CameraConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	ID            string         `mapstructure:"id"`
	Offset        LocationConfig `mapstructure:"offset"`
	UnitsPerPixel LocationConfig `mapstructure:"units_per_pixel"`

	// Frames is a directory of images served in turn as captures.
	Frames string `mapstructure:"frames"`
}

type EngineConfig struct {
	Speed         float64 `mapstructure:"speed"`
	Policy        string  `mapstructure:"policy"`
	HomeBeforeRun bool    `mapstructure:"home_before_run"`
}

// ProbeConfig sets how board surfaces are probed.
type ProbeConfig struct {
	Granularity float64 `mapstructure:"granularity"`
	MaxTravel   float64 `mapstructure:"max_travel"`
	FeedRate    float64 `mapstructure:"feed_rate"`
}

type FeederConfig struct {
	// Type is one of "static", "tray" or "drag".
	Type     string         `mapstructure:"type"`
	ID       string         `mapstructure:"id"`
	Part     string         `mapstructure:"part"`
	Height   float64        `mapstructure:"height"`
	Location LocationConfig `mapstructure:"location"`
	Disabled bool           `mapstructure:"disabled"`

	CountX  int            `mapstructure:"count_x"`
	CountY  int            `mapstructure:"count_y"`
	Offsets LocationConfig `mapstructure:"offsets"`

	FeedStart LocationConfig `mapstructure:"feed_start"`
	FeedEnd   LocationConfig `mapstructure:"feed_end"`
	FeedSpeed float64        `mapstructure:"feed_speed"`
	Pin       string         `mapstructure:"pin"`
	Template  string         `mapstructure:"template"`
	Threshold float64        `mapstructure:"threshold"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":9091")
	v.SetDefault("units", "mm")
	v.SetDefault("transport.type", "serial")
	v.SetDefault("controller.port", "/dev/ttyUSB0")
	v.SetDefault("controller.baud", 115200)
	v.SetDefault("controller.read_timeout", "100ms")
	v.SetDefault("controller.connect_timeout", "3s")
	v.SetDefault("controller.command_timeout", "1m")
	v.SetDefault("controller.version_retries", 3)
	v.SetDefault("controller.feed_rate", 3000)
	v.SetDefault("head.id", "H1")
	v.SetDefault("head.safe_z", 10)
	v.SetDefault("camera.id", "C1")
	v.SetDefault("engine.speed", 1)
	v.SetDefault("engine.policy", job.ContinueStep.String())
	v.SetDefault("probe.granularity", 10)
	v.SetDefault("probe.max_travel", 20)
	v.SetDefault("probe.feed_rate", 100)
	v.SetDefault("align_tolerance", 0.1)
}

// LoadConfig reads the config file at path. An empty path looks for
// gpnp.{yaml,toml,json} in the working directory and uses the defaults if
// none exists. GPNP_* environment variables override file values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("gpnp")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gpnp")
		v.AddConfigPath(".")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !(path == "" && errors.As(err, &notFound)) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// NativeUnits parses Units.
func (c *Config) NativeUnits() (coord.LengthUnit, error) {
	return coord.ParseLengthUnit(c.Units)
}

// DriverConfig converts the controller section for controller.NewDriver.
func (c *Config) DriverConfig() (controller.Config, error) {
	u, err := c.NativeUnits()
	if err != nil {
		return controller.Config{}, err
	}
	cc := c.Controller
	dc := controller.Config{
		Port:           cc.Port,
		Baud:           cc.Baud,
		ReadTimeout:    cc.ReadTimeout,
		ConnectTimeout: cc.ConnectTimeout,
		CommandTimeout: cc.CommandTimeout,
		VersionRetries: cc.VersionRetries,
		MinVersion:     cc.MinVersion,
		FeedRate:       cc.FeedRate,
		Units:          u,
	}

	cmds := controller.DefaultCommands()
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cmds.Probe, cc.Commands.Probe)
	override(&cmds.VersionQuery, cc.Commands.VersionQuery)
	override(&cmds.Dwell, cc.Commands.Dwell)
	override(&cmds.Home, cc.Commands.Home)
	override(&cmds.DisableSteppers, cc.Commands.DisableSteppers)
	override(&cmds.ZeroAxes, cc.Commands.ZeroAxes)
	override(&cmds.Pick, cc.Commands.Pick)
	override(&cmds.Place, cc.Commands.Place)
	if len(cc.Commands.Actuators) > 0 {
		cmds.Actuators = make(map[string]controller.ActuatorCommands, len(cc.Commands.Actuators))
		for name, a := range cc.Commands.Actuators {
			cmds.Actuators[name] = controller.ActuatorCommands{On: a.On, Off: a.Off}
		}
	}
	dc.Commands = cmds
	return dc, nil
}

// EngineOptions converts the engine section for job.NewEngine.
func (c *Config) EngineOptions() (job.Options, error) {
	p, err := job.ParseFailurePolicy(c.Engine.Policy)
	if err != nil {
		return job.Options{}, err
	}
	return job.Options{
		Speed:         c.Engine.Speed,
		Policy:        p,
		HomeBeforeRun: c.Engine.HomeBeforeRun,
	}, nil
}
