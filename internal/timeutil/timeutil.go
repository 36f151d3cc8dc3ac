package timeutil

// TimeUtil is the time-keeping kit for one control or odometry loop.
type TimeUtil struct {
	Clock   Clock
	Timer   *Timer
	Rate    *Rate
	Settled *SettledUtil
}

// Factory creates independent TimeUtils on one clock.
type Factory struct {
	Clock  Clock
	Settle SettleParams
}

// DefaultFactory uses the system clock and the default settle thresholds.
func DefaultFactory() Factory {
	return Factory{Clock: SystemClock(), Settle: DefaultSettleParams()}
}

// WithSettle returns a copy of f with different settle thresholds.
func (f Factory) WithSettle(p SettleParams) Factory {
	f.Settle = p
	return f
}

func (f Factory) Create() TimeUtil {
	clock := f.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return TimeUtil{
		Clock:   clock,
		Timer:   NewTimer(clock),
		Rate:    NewRate(clock),
		Settled: NewSettledUtil(f.Settle, NewTimer(clock)),
	}
}
