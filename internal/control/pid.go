package control

import (
	"math"
	"time"

	"github.com/san-kum/chassisctl/internal/filter"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// PIDController is an iterative position PID. It computes only when Step is
// called and at least one sample time has passed since the last computation;
// in between, Step returns the previous output.
//
// The derivative acts on the measurement, not the error, so target changes
// do not kick the output, and it is passed through a filter to reject encoder
// quantisation noise.
type PIDController struct {
	gains Gains

	target      float64
	lastReading float64
	err         float64
	lastErr     float64
	derivative  float64
	integral    float64
	output      float64

	integralMin, integralMax float64
	errorSumMin, errorSumMax float64
	outputMin, outputMax     float64
	resetOnCross             bool

	sampleTime time.Duration
	disabled   bool
	primed     bool
	settled    bool

	derivativeFilter filter.Filter
	loopTimer        *timeutil.Timer
	settledUtil      *timeutil.SettledUtil
}

// NewPIDController creates a controller with outputs in [-1, 1]. A nil
// derivative filter means no smoothing.
func NewPIDController(gains Gains, tu timeutil.TimeUtil, derivative filter.Filter) *PIDController {
	if derivative == nil {
		derivative = filter.NewPassthrough()
	}
	return &PIDController{
		gains:            gains,
		integralMin:      -1,
		integralMax:      1,
		errorSumMin:      0,
		errorSumMax:      math.MaxFloat64,
		outputMin:        -1,
		outputMax:        1,
		resetOnCross:     true,
		sampleTime:       DefaultSampleTime,
		derivativeFilter: derivative,
		loopTimer:        tu.Timer,
		settledUtil:      tu.Settled,
	}
}

func (p *PIDController) SetTarget(target float64) {
	p.target = target
}

func (p *PIDController) Target() float64 { return p.target }

func (p *PIDController) Step(reading float64) float64 {
	if p.disabled {
		return 0
	}

	p.loopTimer.PlaceHardMark()
	dt := p.loopTimer.DtFromHardMark()
	if p.primed && dt < p.sampleTime {
		return p.output
	}

	if !p.primed {
		p.lastReading = reading
		p.lastErr = p.target - reading
		p.primed = true
	}

	p.err = p.target - reading

	secs := dt.Seconds()
	if abs := math.Abs(p.err); abs >= p.errorSumMin && abs <= p.errorSumMax {
		p.integral += p.gains.Ki * p.err * secs
	}
	if p.resetOnCross && math.Signbit(p.err) != math.Signbit(p.lastErr) {
		p.integral = 0
	}
	p.integral = clamp(p.integral, p.integralMin, p.integralMax)

	rate := 0.0
	if secs > 0 {
		rate = (reading - p.lastReading) / secs
	}
	p.derivative = p.derivativeFilter.Filter(rate)

	p.output = clamp(
		p.gains.Kp*p.err+p.integral-p.gains.Kd*p.derivative+p.gains.Kbias,
		p.outputMin, p.outputMax,
	)

	p.lastReading = reading
	p.lastErr = p.err
	p.loopTimer.ClearHardMark()
	p.loopTimer.PlaceHardMark()
	p.settled = p.settledUtil.IsSettled(p.err)

	return p.output
}

func (p *PIDController) Output() float64 {
	if p.disabled {
		return 0
	}
	return p.output
}

func (p *PIDController) Error() float64      { return p.err }
func (p *PIDController) Derivative() float64 { return p.derivative }

// IsSettled reflects the last computed step. A disabled controller is never
// settled.
func (p *PIDController) IsSettled() bool {
	return !p.disabled && p.settled
}

func (p *PIDController) Reset() {
	p.err = 0
	p.lastErr = 0
	p.lastReading = 0
	p.integral = 0
	p.output = 0
	p.derivative = 0
	p.primed = false
	p.settled = false
	p.loopTimer.ClearHardMark()
	p.settledUtil.Reset()
}

func (p *PIDController) FlipDisable() {
	p.SetDisabled(!p.disabled)
}

func (p *PIDController) SetDisabled(disabled bool) {
	p.disabled = disabled
}

func (p *PIDController) IsDisabled() bool { return p.disabled }

func (p *PIDController) SetSampleTime(d time.Duration) {
	if d >= 0 {
		p.sampleTime = d
	}
}

func (p *PIDController) SampleTime() time.Duration { return p.sampleTime }

func (p *PIDController) SetOutputLimits(max, min float64) {
	if min > max {
		max, min = min, max
	}
	p.outputMax, p.outputMin = max, min
	p.output = clamp(p.output, min, max)
}

// SetIntegralLimits bounds the accumulated integral term.
func (p *PIDController) SetIntegralLimits(max, min float64) {
	if min > max {
		max, min = min, max
	}
	p.integralMax, p.integralMin = max, min
	p.integral = clamp(p.integral, min, max)
}

// SetErrorSumLimits integrates only while |error| is within [min, max].
func (p *PIDController) SetErrorSumLimits(max, min float64) {
	if min > max {
		max, min = min, max
	}
	p.errorSumMax, p.errorSumMin = max, min
}

// SetIntegratorReset controls zeroing the integral when the error changes sign.
func (p *PIDController) SetIntegratorReset(reset bool) {
	p.resetOnCross = reset
}

func (p *PIDController) SetGains(g Gains) { p.gains = g }
func (p *PIDController) Gains() Gains     { return p.gains }

var _ Controller = (*PIDController)(nil)
