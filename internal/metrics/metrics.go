package metrics

import (
	"time"

	"github.com/san-kum/chassisctl/internal/odometry"
)

// Sample is one observation of a run.
type Sample struct {
	T     time.Duration
	Truth odometry.Pose
	// Estimate is valid when HasEstimate is set.
	Estimate    odometry.Pose
	HasEstimate bool
	WheelRPM    []float64
}

// Metric folds samples into a single value. Metrics are not safe for
// concurrent use.
type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

func Default() []Metric {
	return []Metric{
		NewPathLength(),
		NewOdometryDrift(),
		NewHeadingDrift(),
		NewControlEffort(),
	}
}

// Collect returns the value of every metric by name.
func Collect(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
