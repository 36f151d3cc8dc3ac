package control

import "time"

// DefaultSampleTime is the period iterative controllers compute at.
const DefaultSampleTime = 10 * time.Millisecond

// Controller is the closed-loop capability set shared by every strategy.
type Controller interface {
	SetTarget(target float64)
	Target() float64
	// Step consumes a feedback reading and returns the controller output.
	Step(reading float64) float64
	Output() float64
	Error() float64
	IsSettled() bool
	Reset()
	FlipDisable()
	SetDisabled(disabled bool)
	IsDisabled() bool
	SetSampleTime(d time.Duration)
	SampleTime() time.Duration
	SetOutputLimits(max, min float64)
}

// VelocityController is a Controller whose output is a velocity command.
type VelocityController interface {
	Controller
}

// Gains are the PID coefficients. Ki and Kd are per second.
type Gains struct {
	Kp    float64 `yaml:"kp"`
	Ki    float64 `yaml:"ki"`
	Kd    float64 `yaml:"kd"`
	Kbias float64 `yaml:"kbias"`
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
