package control

import (
	"math"
	"time"

	"github.com/san-kum/chassisctl/internal/filter"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// VelGains are the coefficients of a velocity PID. Kf is feed-forward on the
// target velocity.
type VelGains struct {
	Kp    float64 `yaml:"kp"`
	Kd    float64 `yaml:"kd"`
	Kf    float64 `yaml:"kf"`
	Kbias float64 `yaml:"kbias"`
}

// VelPIDController tracks a target velocity in rpm. Step takes a tick count;
// the velocity is derived by VelMath. The PID acts in velocity form, so the
// proportional term accumulates into the output.
type VelPIDController struct {
	gains   VelGains
	velMath *VelMath

	target      float64
	err         float64
	derivative  float64
	accumulated float64
	output      float64

	outputMin, outputMax float64
	sampleTime           time.Duration
	disabled             bool
	primed               bool
	settled              bool

	derivativeFilter filter.Filter
	loopTimer        *timeutil.Timer
	settledUtil      *timeutil.SettledUtil
}

func NewVelPIDController(gains VelGains, velMath *VelMath, tu timeutil.TimeUtil, derivative filter.Filter) *VelPIDController {
	if derivative == nil {
		derivative = filter.NewPassthrough()
	}
	return &VelPIDController{
		gains:            gains,
		velMath:          velMath,
		outputMin:        -1,
		outputMax:        1,
		sampleTime:       DefaultSampleTime,
		derivativeFilter: derivative,
		loopTimer:        tu.Timer,
		settledUtil:      tu.Settled,
	}
}

func (c *VelPIDController) SetTarget(target float64) { c.target = target }
func (c *VelPIDController) Target() float64          { return c.target }

func (c *VelPIDController) Step(ticks float64) float64 {
	vel := c.velMath.Step(ticks)
	if c.disabled {
		return 0
	}

	c.loopTimer.PlaceHardMark()
	if c.primed && c.loopTimer.DtFromHardMark() < c.sampleTime {
		return c.output
	}
	c.primed = true

	c.err = c.target - vel
	c.derivative = c.derivativeFilter.Filter(c.velMath.Accel())

	c.accumulated = clamp(c.accumulated+c.gains.Kp*c.err-c.gains.Kd*c.derivative, c.outputMin, c.outputMax)
	ff := c.gains.Kf*c.target + math.Copysign(c.gains.Kbias, c.target)
	if c.target == 0 {
		ff = 0
	}
	c.output = clamp(c.accumulated+ff, c.outputMin, c.outputMax)

	c.loopTimer.ClearHardMark()
	c.loopTimer.PlaceHardMark()
	c.settled = c.settledUtil.IsSettled(c.err)
	return c.output
}

func (c *VelPIDController) Output() float64 {
	if c.disabled {
		return 0
	}
	return c.output
}

func (c *VelPIDController) Error() float64 { return c.err }

func (c *VelPIDController) IsSettled() bool { return !c.disabled && c.settled }

func (c *VelPIDController) Reset() {
	c.err, c.derivative, c.accumulated, c.output = 0, 0, 0, 0
	c.primed, c.settled = false, false
	c.velMath.Reset()
	c.loopTimer.ClearHardMark()
	c.settledUtil.Reset()
}

func (c *VelPIDController) FlipDisable()              { c.disabled = !c.disabled }
func (c *VelPIDController) SetDisabled(disabled bool) { c.disabled = disabled }
func (c *VelPIDController) IsDisabled() bool          { return c.disabled }

func (c *VelPIDController) SetSampleTime(d time.Duration) {
	if d >= 0 {
		c.sampleTime = d
	}
}

func (c *VelPIDController) SampleTime() time.Duration { return c.sampleTime }

func (c *VelPIDController) SetOutputLimits(max, min float64) {
	if min > max {
		max, min = min, max
	}
	c.outputMax, c.outputMin = max, min
	c.accumulated = clamp(c.accumulated, min, max)
	c.output = clamp(c.output, min, max)
}

func (c *VelPIDController) VelMath() *VelMath { return c.velMath }

var _ VelocityController = (*VelPIDController)(nil)
