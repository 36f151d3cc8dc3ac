package metrics

import "math"

// ControlEffort is the mean absolute wheel speed in rpm.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(s Sample) {
	if len(s.WheelRPM) == 0 {
		return
	}
	total := 0.0
	for _, rpm := range s.WheelRPM {
		total += math.Abs(rpm)
	}
	c.sum += total / float64(len(s.WheelRPM))
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}
