package filter

// EMA is an exponential moving average: out = alpha*reading + (1-alpha)*out.
// The first reading seeds the output.
type EMA struct {
	alpha       float64
	output      float64
	initialized bool
}

func NewEMA(alpha float64) *EMA {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &EMA{alpha: alpha}
}

func (e *EMA) Filter(reading float64) float64 {
	if !e.initialized {
		e.output = reading
		e.initialized = true
		return e.output
	}
	e.output = e.alpha*reading + (1-e.alpha)*e.output
	return e.output
}

func (e *EMA) Output() float64 {
	return e.output
}
