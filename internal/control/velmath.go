package control

import (
	"github.com/san-kum/chassisctl/internal/filter"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// VelMath estimates rotational velocity in rpm from successive tick counts.
type VelMath struct {
	ticksPerRev float64
	filter      filter.Filter
	timer       *timeutil.Timer

	lastTicks float64
	velocity  float64
	lastVel   float64
	accel     float64
	primed    bool
}

func NewVelMath(ticksPerRev float64, f filter.Filter, timer *timeutil.Timer) *VelMath {
	if f == nil {
		f = filter.NewPassthrough()
	}
	return &VelMath{ticksPerRev: ticksPerRev, filter: f, timer: timer}
}

// NewDefaultVelMath smooths velocity with a two-tap moving average.
func NewDefaultVelMath(ticksPerRev float64, clock timeutil.Clock) *VelMath {
	return NewVelMath(ticksPerRev, filter.NewAverage(2), timeutil.NewTimer(clock))
}

// Step consumes a tick count and returns the filtered velocity.
func (v *VelMath) Step(ticks float64) float64 {
	dt := v.timer.Dt()
	if !v.primed {
		v.lastTicks = ticks
		v.primed = true
		return v.velocity
	}
	if dt <= 0 || v.ticksPerRev == 0 {
		return v.velocity
	}

	rpm := (ticks - v.lastTicks) / v.ticksPerRev / dt.Minutes()
	v.lastTicks = ticks

	v.lastVel = v.velocity
	v.velocity = v.filter.Filter(rpm)
	v.accel = (v.velocity - v.lastVel) / dt.Seconds()
	return v.velocity
}

func (v *VelMath) Velocity() float64 { return v.velocity }

// Accel is in rpm per second.
func (v *VelMath) Accel() float64 { return v.accel }

func (v *VelMath) SetTicksPerRev(tpr float64) { v.ticksPerRev = tpr }

func (v *VelMath) Reset() {
	v.velocity, v.lastVel, v.accel = 0, 0, 0
	v.primed = false
}
