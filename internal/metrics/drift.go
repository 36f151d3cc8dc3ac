package metrics

import (
	"math"

	"github.com/san-kum/chassisctl/internal/odometry"
)

// OdometryDrift is the largest distance between the estimated and the true
// position.
type OdometryDrift struct {
	name     string
	maxDrift float64
}

func NewOdometryDrift() *OdometryDrift {
	return &OdometryDrift{name: "odometry_drift"}
}

func (d *OdometryDrift) Name() string { return d.name }

func (d *OdometryDrift) Observe(s Sample) {
	if !s.HasEstimate {
		return
	}
	d.maxDrift = math.Max(d.maxDrift, s.Truth.DistanceTo(s.Estimate.X, s.Estimate.Y))
}

func (d *OdometryDrift) Value() float64 { return d.maxDrift }

func (d *OdometryDrift) Reset() { d.maxDrift = 0 }

// HeadingDrift is the largest heading error of the estimate, in degrees.
type HeadingDrift struct {
	name     string
	maxDrift float64
}

func NewHeadingDrift() *HeadingDrift {
	return &HeadingDrift{name: "heading_drift"}
}

func (d *HeadingDrift) Name() string { return d.name }

func (d *HeadingDrift) Observe(s Sample) {
	if !s.HasEstimate {
		return
	}
	err := math.Abs(odometry.WrapDegrees(s.Estimate.Theta - s.Truth.Theta))
	d.maxDrift = math.Max(d.maxDrift, err)
}

func (d *HeadingDrift) Value() float64 { return d.maxDrift }

func (d *HeadingDrift) Reset() { d.maxDrift = 0 }
