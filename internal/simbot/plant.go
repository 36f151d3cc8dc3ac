package simbot

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/kinematics"
)

type Layout int

const (
	LayoutSkidSteer Layout = iota
	LayoutXDrive
)

func (l Layout) String() string {
	if l == LayoutXDrive {
		return "x-drive"
	}
	return "skid-steer"
}

// Motors returns the number of motors in the layout. Skid-steer motors are
// ordered left, right; X-drive motors follow the kinematics wheel order.
func (l Layout) Motors() int {
	if l == LayoutXDrive {
		return 4
	}
	return 2
}

type Params struct {
	Layout     Layout
	Dimensions kinematics.Dimensions
	Gearset    device.Gearset
	// TimeConstant is the first-order lag between commanded and actual
	// motor velocity.
	TimeConstant time.Duration
	// HoldGain is the onboard position controller gain in rpm per tick.
	HoldGain float64
	// TrackingWheel adds an unpowered lateral wheel at
	// Dimensions.MiddleWheelDistance ahead of the center.
	TrackingWheel bool
}

func DefaultParams() Params {
	return Params{
		Layout: LayoutSkidSteer,
		Dimensions: kinematics.Dimensions{
			WheelDiameter: 0.1016,
			WheelTrack:    0.2921,
		},
		Gearset:      device.Green,
		TimeConstant: 50 * time.Millisecond,
		HoldGain:     0.5,
	}
}

func (p Params) Validate() error {
	if _, err := kinematics.NewChassisScales(p.Dimensions, p.Gearset.TicksPerRev()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if p.Gearset.RPM() <= 0 {
		return fmt.Errorf("%w: gearset %v", ErrInvalidParams, p.Gearset)
	}
	if p.TimeConstant <= 0 || p.HoldGain <= 0 {
		return fmt.Errorf("%w: time constant %v, hold gain %g", ErrInvalidParams, p.TimeConstant, p.HoldGain)
	}
	return nil
}

type driveMode int

const (
	modeVelocity driveMode = iota
	modeAbsolute
)

// command is the input held by one motor. Absolute targets are raw
// positions in revolutions, before any tare.
type command struct {
	mode   driveMode
	rpm    float64
	target float64
	limit  float64
}

// State layout: pose (x, y in meters, theta in radians clockwise), then
// motor velocities in rpm, motor positions in revolutions and the tracking
// wheel position in revolutions.
const (
	idxX = iota
	idxY
	idxTheta
	idxMotors
)

// plant is the drivetrain System. Commands are replaced between steps only.
type plant struct {
	params   Params
	n        int
	tau      float64
	maxRPM   float64
	tpr      float64
	wheel    float64
	middle   float64
	slip     float64
	commands []command
}

func newPlant(p Params, slip float64) *plant {
	middleDiameter := p.Dimensions.MiddleWheelDiameter
	if middleDiameter <= 0 {
		middleDiameter = p.Dimensions.WheelDiameter
	}
	n := p.Layout.Motors()
	return &plant{
		params:   p,
		n:        n,
		tau:      p.TimeConstant.Seconds(),
		maxRPM:   p.Gearset.RPM(),
		tpr:      p.Gearset.TicksPerRev(),
		wheel:    math.Pi * p.Dimensions.WheelDiameter,
		middle:   math.Pi * middleDiameter,
		slip:     slip,
		commands: make([]command, n),
	}
}

func (p *plant) dim() int         { return idxMotors + 2*p.n + 1 }
func (p *plant) velIdx(i int) int { return idxMotors + i }
func (p *plant) posIdx(i int) int { return idxMotors + p.n + i }
func (p *plant) middleIdx() int   { return idxMotors + 2*p.n }

func (p *plant) targetRPM(c command, revs float64) float64 {
	switch c.mode {
	case modeAbsolute:
		rpm := p.params.HoldGain * (c.target - revs) * p.tpr
		return math.Max(-c.limit, math.Min(c.limit, rpm))
	default:
		return math.Max(-p.maxRPM, math.Min(p.maxRPM, c.rpm))
	}
}

// body returns the ground velocity in the chassis frame: forward and strafe
// in m/s, yaw in rad/s clockwise.
func (p *plant) body(x State) (forward, strafe, yaw float64) {
	speed := func(i int) float64 { return x[p.velIdx(i)] / 60 * p.wheel }
	half := p.params.Dimensions.WheelTrack / 2

	switch p.params.Layout {
	case LayoutXDrive:
		v := kinematics.FromWheels([4]float64{speed(0), speed(1), speed(2), speed(3)})
		forward, strafe, yaw = v.Forward, v.Strafe, v.Yaw/half
	default:
		left, right := speed(0), speed(1)
		forward, yaw = (left+right)/2, (left-right)/(2*half)
	}

	// Slip loses ground travel the encoders still count.
	k := 1 - p.slip
	return forward * k, strafe * k, yaw * k
}

func (p *plant) Derive(x State, _ float64) State {
	dx := make(State, len(x))
	for i, c := range p.commands {
		w := x[p.velIdx(i)]
		dx[p.velIdx(i)] = (p.targetRPM(c, x[p.posIdx(i)]) - w) / p.tau
		dx[p.posIdx(i)] = w / 60
	}

	forward, strafe, yaw := p.body(x)
	sin, cos := math.Sincos(x[idxTheta])
	dx[idxX] = forward*cos - strafe*sin
	dx[idxY] = forward*sin + strafe*cos
	dx[idxTheta] = yaw
	if p.params.TrackingWheel {
		dx[p.middleIdx()] = (strafe + yaw*p.params.Dimensions.MiddleWheelDistance) / p.middle
	}
	return dx
}
