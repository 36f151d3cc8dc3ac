package config

import (
	"sort"
	"time"

	"github.com/san-kum/chassisctl/internal/control"
	"github.com/san-kum/chassisctl/internal/simbot"
)

var presetSettle = SettleConfig{Error: 10, Derivative: 5, Time: 100 * time.Millisecond}

// tuned enables PID control with gains tuned for the default plant, plus
// odometry when odom is set.
func tuned(c *Config, odom bool) {
	c.Gains = &GainsConfig{
		Distance: control.Gains{Kp: 0.002},
		Turn:     control.Gains{Kp: 0.004},
	}
	if odom {
		c.Odometry = &OdometryConfig{MoveThreshold: 0.02, TurnThreshold: 2}
	}
	c.Settle = presetSettle
}

func square() []Step {
	return []Step{Point(0.6, 0), Point(0.6, 0.6), Point(0, 0.6), Point(0, 0), Heading(0)}
}

// Presets maps a layout to named runs. Each entry builds a fresh Config.
var Presets = map[string]map[string]func() *Config{
	"skid-steer": {
		"square": func() *Config {
			c := DefaultConfig()
			tuned(c, true)
			c.Script = square()
			return c
		},
		"shuffle": func() *Config {
			c := DefaultConfig()
			c.Script = []Step{Drive(0.5), Turn(90), Drive(0.3), Turn(-90), Drive(-0.3)}
			return c
		},
		"tracking": func() *Config {
			c := DefaultConfig()
			tuned(c, true)
			c.Dimensions.MiddleWheelDiameter = 0.07
			c.Dimensions.MiddleWheelDistance = 0.1
			c.Dimensions.MiddleTicksPerRev = 360
			c.Sim.TrackingWheel = true
			c.DerivativeFilter = "average:2"
			c.Script = []Step{Point(0.5, 0.3), PointBackwards(0, 0), Heading(90)}
			return c
		},
		"slippery": func() *Config {
			c := DefaultConfig()
			tuned(c, true)
			c.Faults = simbot.Faults{ReadFailureRate: 0.02, EncoderNoise: 2, Slip: 0.05, Seed: 1}
			c.Script = square()
			return c
		},
	},
	"x-drive": {
		"box": func() *Config {
			c := DefaultConfig()
			c.Layout = "x-drive"
			tuned(c, false)
			c.Script = []Step{Drive(0.4), Turn(90), Drive(0.4), Turn(90), Drive(0.4), Turn(90), Drive(0.4), Turn(90)}
			return c
		},
		"onboard": func() *Config {
			c := DefaultConfig()
			c.Layout = "x-drive"
			c.Gearset = "blue"
			c.Script = []Step{Drive(0.6), Turn(180), Drive(0.6)}
			return c
		},
	},
}

// GetPreset returns a fresh copy of a preset, or nil.
func GetPreset(layout, preset string) *Config {
	layoutPresets, ok := Presets[layout]
	if !ok {
		return nil
	}
	build, ok := layoutPresets[preset]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets(layout string) []string {
	layoutPresets, ok := Presets[layout]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(layoutPresets))
	for name := range layoutPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListLayouts() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
