package filter

// Average is a moving average over a fixed number of taps. Unfilled taps
// count as zero, so the first n-1 outputs ramp up from the origin.
type Average struct {
	data   []float64
	index  int
	output float64
}

func NewAverage(taps int) *Average {
	if taps < 1 {
		taps = 1
	}
	return &Average{data: make([]float64, taps)}
}

func (a *Average) Filter(reading float64) float64 {
	a.data[a.index] = reading
	a.index = (a.index + 1) % len(a.data)

	sum := 0.0
	for _, v := range a.data {
		sum += v
	}
	a.output = sum / float64(len(a.data))
	return a.output
}

func (a *Average) Output() float64 {
	return a.output
}

// Taps returns the window length.
func (a *Average) Taps() int {
	return len(a.data)
}
