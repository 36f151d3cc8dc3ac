package control

import (
	"time"

	"github.com/edaniels/golog"

	"github.com/san-kum/chassisctl/internal/device"
)

// MotorVelocityController bridges a velocity controller to a motor: each Step
// advances the controller and commands the motor at the resulting velocity.
type MotorVelocityController struct {
	motor      device.Motor
	controller VelocityController
	logger     golog.Logger
}

func NewMotorVelocityController(motor device.Motor, controller VelocityController, logger golog.Logger) *MotorVelocityController {
	return &MotorVelocityController{motor: motor, controller: controller, logger: logger}
}

func (c *MotorVelocityController) Step(reading float64) float64 {
	c.controller.Step(reading)
	out := c.controller.Output()
	if err := c.motor.MoveVelocity(out); err != nil {
		c.logger.Warnw("motor velocity command failed", "velocity", out, "error", err)
	}
	return out
}

func (c *MotorVelocityController) SetTarget(target float64)      { c.controller.SetTarget(target) }
func (c *MotorVelocityController) Target() float64               { return c.controller.Target() }
func (c *MotorVelocityController) Output() float64               { return c.controller.Output() }
func (c *MotorVelocityController) Error() float64                { return c.controller.Error() }
func (c *MotorVelocityController) IsSettled() bool               { return c.controller.IsSettled() }
func (c *MotorVelocityController) Reset()                        { c.controller.Reset() }
func (c *MotorVelocityController) FlipDisable()                  { c.controller.FlipDisable() }
func (c *MotorVelocityController) SetDisabled(disabled bool)     { c.controller.SetDisabled(disabled) }
func (c *MotorVelocityController) IsDisabled() bool              { return c.controller.IsDisabled() }
func (c *MotorVelocityController) SetSampleTime(d time.Duration) { c.controller.SetSampleTime(d) }
func (c *MotorVelocityController) SampleTime() time.Duration     { return c.controller.SampleTime() }
func (c *MotorVelocityController) SetOutputLimits(max, min float64) {
	c.controller.SetOutputLimits(max, min)
}

var _ VelocityController = (*MotorVelocityController)(nil)
