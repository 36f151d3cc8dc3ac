package control

import (
	"time"

	"github.com/edaniels/golog"

	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// IntegratedController delegates position tracking to a motor's onboard
// controller. Targets are relative to the last Tare, which is a software
// offset: the motor encoder is never reset, so other readers of the same
// encoder are unaffected.
type IntegratedController struct {
	motor       device.Motor
	pair        device.GearsetRatioPair
	maxVelocity float64
	settledUtil *timeutil.SettledUtil
	logger      golog.Logger

	target     float64
	offset     float64
	lastErr    float64
	sampleTime time.Duration
	disabled   bool
}

func NewIntegratedController(
	motor device.Motor,
	pair device.GearsetRatioPair,
	maxVelocity float64,
	tu timeutil.TimeUtil,
	logger golog.Logger,
) *IntegratedController {
	return &IntegratedController{
		motor:       motor,
		pair:        pair,
		maxVelocity: maxVelocity,
		settledUtil: tu.Settled,
		logger:      logger,
		sampleTime:  DefaultSampleTime,
	}
}

// SetTarget sends target+offset to the motor, in encoder ticks.
func (c *IntegratedController) SetTarget(target float64) {
	c.target = target
	if c.disabled {
		return
	}
	c.command()
}

func (c *IntegratedController) command() {
	if err := c.motor.MoveAbsolute(c.target+c.offset, c.maxVelocity); err != nil {
		c.logger.Warnw("integrated controller command failed", "target", c.target, "error", err)
	}
}

func (c *IntegratedController) Target() float64 { return c.target }

// Step ignores the reading; tracking happens on the motor. It refreshes the
// settled state from the motor-reported position and returns the target.
func (c *IntegratedController) Step(float64) float64 {
	c.IsSettled()
	return c.Output()
}

// Output is the position currently commanded to the motor.
func (c *IntegratedController) Output() float64 {
	if c.disabled {
		return 0
	}
	return c.target
}

// Error is target minus the motor position. A failed read returns the last
// known error.
func (c *IntegratedController) Error() float64 {
	pos, err := c.motor.Position()
	if err != nil {
		c.logger.Debugw("integrated controller position read failed", "error", err)
		return c.lastErr
	}
	c.lastErr = c.target - (pos - c.offset)
	return c.lastErr
}

// IsSettled is true while disabled, otherwise once the motor has held the
// target for the settle dwell. Call it periodically.
func (c *IntegratedController) IsSettled() bool {
	if c.disabled {
		return true
	}
	return c.settledUtil.IsSettled(c.Error())
}

// Reset holds the current position and clears the settle state.
func (c *IntegratedController) Reset() {
	c.settledUtil.Reset()
	if pos, err := c.motor.Position(); err == nil {
		c.target = pos - c.offset
	}
	c.lastErr = 0
}

// Tare makes the current motor position the zero for future targets.
func (c *IntegratedController) Tare() error {
	pos, err := c.motor.Position()
	if err != nil {
		return err
	}
	c.offset = pos
	c.target = 0
	c.lastErr = 0
	c.settledUtil.Reset()
	return nil
}

func (c *IntegratedController) FlipDisable() { c.SetDisabled(!c.disabled) }

// SetDisabled stops the motor when disabling and re-sends the target when
// enabling.
func (c *IntegratedController) SetDisabled(disabled bool) {
	if c.disabled == disabled {
		return
	}
	c.disabled = disabled
	if disabled {
		if err := c.motor.MoveVelocity(0); err != nil {
			c.logger.Warnw("integrated controller stop failed", "error", err)
		}
		return
	}
	c.command()
}

func (c *IntegratedController) IsDisabled() bool { return c.disabled }

// SetSampleTime is recorded but has no effect: the motor samples itself.
func (c *IntegratedController) SetSampleTime(d time.Duration) { c.sampleTime = d }
func (c *IntegratedController) SampleTime() time.Duration     { return c.sampleTime }

// SetOutputLimits sets the velocity limit for subsequent targets.
func (c *IntegratedController) SetOutputLimits(max, min float64) {
	if -min > max {
		max = -min
	}
	c.maxVelocity = max
}

func (c *IntegratedController) SetMaxVelocity(rpm float64) { c.maxVelocity = rpm }
func (c *IntegratedController) MaxVelocity() float64       { return c.maxVelocity }

// Stop halts the motor without disabling the controller.
func (c *IntegratedController) Stop() error {
	return c.motor.MoveVelocity(0)
}

func (c *IntegratedController) GearsetRatio() device.GearsetRatioPair { return c.pair }

var _ Controller = (*IntegratedController)(nil)
