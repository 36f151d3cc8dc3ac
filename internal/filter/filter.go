// Package filter provides single-input smoothing filters used to denoise
// derivative terms and velocity estimates.
package filter

// Filter is a stateful single-input, single-output smoother.
type Filter interface {
	// Filter consumes a reading and returns the new output.
	Filter(reading float64) float64
	// Output returns the last output without consuming a reading.
	Output() float64
}

// Factory creates a fresh filter. Controllers never share filter state.
type Factory func() Filter

// Passthrough returns its input unchanged.
type Passthrough struct {
	output float64
}

func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) Filter(reading float64) float64 {
	p.output = reading
	return p.output
}

func (p *Passthrough) Output() float64 {
	return p.output
}

var (
	_ Filter = (*Passthrough)(nil)
	_ Filter = (*Average)(nil)
	_ Filter = (*EMA)(nil)
)
