package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/chassisctl/internal/control"
	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/filter"
	"github.com/san-kum/chassisctl/internal/kinematics"
	"github.com/san-kum/chassisctl/internal/simbot"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

const (
	DefaultPeriod       = 5 * time.Millisecond
	DefaultTimeout      = 60 * time.Second
	DefaultStallTimeout = 10 * time.Second
	DefaultLayout       = "skid-steer"
	DefaultGearset      = "green"
	DefaultIntegrator   = "rk4"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config describes one simulated chassis run: the drivetrain, the
// controller knobs handed to the builder and the motion script.
type Config struct {
	Layout       string                `yaml:"layout"`
	Gearset      string                `yaml:"gearset"`
	Dimensions   kinematics.Dimensions `yaml:"dimensions"`
	MaxVelocity  float64               `yaml:"max_velocity,omitempty"`
	StallTimeout time.Duration         `yaml:"stall_timeout"`
	// Gains selects the PID strategy. Without them the motors' onboard
	// controllers are used.
	Gains *GainsConfig `yaml:"gains,omitempty"`
	// DerivativeFilter is "none", "average:<taps>" or "ema:<alpha>".
	DerivativeFilter string `yaml:"derivative_filter,omitempty"`
	// Odometry wraps the strategy with pose tracking.
	Odometry *OdometryConfig `yaml:"odometry,omitempty"`
	Settle   SettleConfig    `yaml:"settle"`
	Sim      SimConfig       `yaml:"sim"`
	Faults   simbot.Faults   `yaml:"faults,omitempty"`
	Script   []Step          `yaml:"script"`
}

type GainsConfig struct {
	Distance control.Gains  `yaml:"distance"`
	Turn     control.Gains  `yaml:"turn"`
	Angle    *control.Gains `yaml:"angle,omitempty"`
}

type OdometryConfig struct {
	MoveThreshold float64 `yaml:"move_threshold"`
	TurnThreshold float64 `yaml:"turn_threshold"`
}

type SettleConfig struct {
	Error      float64       `yaml:"error"`
	Derivative float64       `yaml:"derivative"`
	Time       time.Duration `yaml:"time"`
}

type SimConfig struct {
	Period        time.Duration `yaml:"period"`
	Integrator    string        `yaml:"integrator"`
	TimeConstant  time.Duration `yaml:"time_constant"`
	HoldGain      float64       `yaml:"hold_gain"`
	TrackingWheel bool          `yaml:"tracking_wheel,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Step is one motion of a script. Exactly one of Drive, Turn, Point and
// Heading is set.
type Step struct {
	Drive     *float64  `yaml:"drive,omitempty"`
	Turn      *float64  `yaml:"turn,omitempty"`
	Point     []float64 `yaml:"point,omitempty"`
	Heading   *float64  `yaml:"heading,omitempty"`
	Backwards bool      `yaml:"backwards,omitempty"`
}

type StepKind int

const (
	StepInvalid StepKind = iota
	StepDrive
	StepTurn
	StepPoint
	StepHeading
)

func (k StepKind) String() string {
	switch k {
	case StepDrive:
		return "drive"
	case StepTurn:
		return "turn"
	case StepPoint:
		return "point"
	case StepHeading:
		return "heading"
	default:
		return "invalid"
	}
}

func (s Step) Kind() StepKind {
	kind, set := StepInvalid, 0
	if s.Drive != nil {
		kind, set = StepDrive, set+1
	}
	if s.Turn != nil {
		kind, set = StepTurn, set+1
	}
	if s.Point != nil {
		kind, set = StepPoint, set+1
	}
	if s.Heading != nil {
		kind, set = StepHeading, set+1
	}
	if set != 1 || (kind == StepPoint && len(s.Point) != 2) {
		return StepInvalid
	}
	return kind
}

func (s Step) String() string {
	switch s.Kind() {
	case StepDrive:
		return fmt.Sprintf("drive %.3fm", *s.Drive)
	case StepTurn:
		return fmt.Sprintf("turn %.1fdeg", *s.Turn)
	case StepPoint:
		dir := ""
		if s.Backwards {
			dir = " backwards"
		}
		return fmt.Sprintf("point (%.3f, %.3f)%s", s.Point[0], s.Point[1], dir)
	case StepHeading:
		return fmt.Sprintf("heading %.1fdeg", *s.Heading)
	default:
		return "invalid step"
	}
}

func Drive(m float64) Step             { return Step{Drive: &m} }
func Turn(deg float64) Step            { return Step{Turn: &deg} }
func Point(x, y float64) Step          { return Step{Point: []float64{x, y}} }
func PointBackwards(x, y float64) Step { return Step{Point: []float64{x, y}, Backwards: true} }
func Heading(deg float64) Step         { return Step{Heading: &deg} }

func DefaultConfig() *Config {
	sim := simbot.DefaultParams()
	settle := timeutil.DefaultSettleParams()
	return &Config{
		Layout:       DefaultLayout,
		Gearset:      DefaultGearset,
		Dimensions:   sim.Dimensions,
		StallTimeout: DefaultStallTimeout,
		Settle: SettleConfig{
			Error:      settle.AtTargetError,
			Derivative: settle.AtTargetDerivative,
			Time:       settle.AtTargetTime,
		},
		Sim: SimConfig{
			Period:       DefaultPeriod,
			Integrator:   DefaultIntegrator,
			TimeConstant: sim.TimeConstant,
			HoldGain:     sim.HoldGain,
			Timeout:      DefaultTimeout,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if _, err := c.SimLayout(); err != nil {
		return err
	}
	if _, err := c.GearsetPair(); err != nil {
		return err
	}
	if _, err := c.FilterFactory(); err != nil {
		return err
	}
	if _, err := kinematics.NewChassisScales(c.Dimensions, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Faults.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if layout, _ := c.SimLayout(); layout == simbot.LayoutXDrive && (c.Odometry != nil || c.Sim.TrackingWheel) {
		return fmt.Errorf("%w: odometry and tracking wheels need the skid-steer layout", ErrInvalidConfig)
	}
	if c.Sim.Period <= 0 || c.Sim.Timeout <= 0 {
		return fmt.Errorf("%w: sim period %v, timeout %v", ErrInvalidConfig, c.Sim.Period, c.Sim.Timeout)
	}
	for i, s := range c.Script {
		kind := s.Kind()
		if kind == StepInvalid {
			return fmt.Errorf("%w: script step %d must set exactly one of drive, turn, point [x, y] or heading", ErrInvalidConfig, i)
		}
		if (kind == StepPoint || kind == StepHeading) && c.Odometry == nil {
			return fmt.Errorf("%w: script step %d (%v) needs odometry", ErrInvalidConfig, i, kind)
		}
	}
	return nil
}

func (c *Config) SimLayout() (simbot.Layout, error) {
	switch strings.ToLower(c.Layout) {
	case "skid-steer", "skid_steer", "":
		return simbot.LayoutSkidSteer, nil
	case "x-drive", "x_drive", "xdrive":
		return simbot.LayoutXDrive, nil
	default:
		return 0, fmt.Errorf("%w: unknown layout %q", ErrInvalidConfig, c.Layout)
	}
}

func (c *Config) GearsetPair() (device.GearsetRatioPair, error) {
	g, err := device.ParseGearset(c.Gearset)
	if err != nil {
		return device.GearsetRatioPair{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return device.NewGearsetRatioPair(g, 1), nil
}

// FilterFactory parses DerivativeFilter. A nil factory means no filtering.
func (c *Config) FilterFactory() (filter.Factory, error) {
	name, arg, _ := strings.Cut(strings.ToLower(c.DerivativeFilter), ":")
	switch name {
	case "", "none":
		return nil, nil
	case "average":
		taps, err := strconv.Atoi(arg)
		if err != nil || taps < 1 {
			return nil, fmt.Errorf("%w: average filter needs a positive tap count, got %q", ErrInvalidConfig, arg)
		}
		return func() filter.Filter { return filter.NewAverage(taps) }, nil
	case "ema":
		alpha, err := strconv.ParseFloat(arg, 64)
		if err != nil || alpha <= 0 || alpha > 1 {
			return nil, fmt.Errorf("%w: ema filter needs alpha in (0, 1], got %q", ErrInvalidConfig, arg)
		}
		return func() filter.Filter { return filter.NewEMA(alpha) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown derivative filter %q", ErrInvalidConfig, c.DerivativeFilter)
	}
}

func (c *Config) SettleParams() timeutil.SettleParams {
	return timeutil.SettleParams{
		AtTargetError:      c.Settle.Error,
		AtTargetDerivative: c.Settle.Derivative,
		AtTargetTime:       c.Settle.Time,
	}
}

// SimParams returns the plant for the configured drivetrain. The config
// must be valid.
func (c *Config) SimParams() simbot.Params {
	p := simbot.DefaultParams()
	p.Layout, _ = c.SimLayout()
	pair, _ := c.GearsetPair()
	p.Gearset = pair.Internal
	p.Dimensions = c.Dimensions
	p.TrackingWheel = c.Sim.TrackingWheel
	if c.Sim.TimeConstant > 0 {
		p.TimeConstant = c.Sim.TimeConstant
	}
	if c.Sim.HoldGain > 0 {
		p.HoldGain = c.Sim.HoldGain
	}
	return p
}
