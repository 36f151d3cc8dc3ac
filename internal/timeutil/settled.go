package timeutil

import (
	"math"
	"time"
)

// SettleParams are the convergence thresholds for a controller.
type SettleParams struct {
	// AtTargetError is the largest error magnitude considered on target.
	AtTargetError float64 `yaml:"error"`
	// AtTargetDerivative is the largest per-check change in error.
	AtTargetDerivative float64 `yaml:"derivative"`
	// AtTargetTime is how long both must hold.
	AtTargetTime time.Duration `yaml:"time"`
}

func DefaultSettleParams() SettleParams {
	return SettleParams{
		AtTargetError:      50,
		AtTargetDerivative: 5,
		AtTargetTime:       250 * time.Millisecond,
	}
}

// SettledUtil reports settled once the error and its change have stayed
// inside tolerance for the dwell time.
type SettledUtil struct {
	params    SettleParams
	timer     *Timer
	lastError float64
}

func NewSettledUtil(params SettleParams, timer *Timer) *SettledUtil {
	return &SettledUtil{params: params, timer: timer}
}

func (s *SettledUtil) IsSettled(err float64) bool {
	if math.Abs(err) <= s.params.AtTargetError &&
		math.Abs(err-s.lastError) <= s.params.AtTargetDerivative {
		s.timer.PlaceHardMark()
	} else {
		s.timer.ClearHardMark()
	}
	s.lastError = err

	return s.timer.HasHardMark() && s.timer.DtFromHardMark() >= s.params.AtTargetTime
}

func (s *SettledUtil) Reset() {
	s.timer.ClearHardMark()
	s.lastError = 0
}

func (s *SettledUtil) Params() SettleParams {
	return s.params
}
