package kinematics

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidDimensions = errors.New("kinematics: invalid chassis dimensions")

// Dimensions are the physical measurements of a chassis, in meters.
type Dimensions struct {
	WheelDiameter float64 `yaml:"wheel_diameter"`
	WheelTrack    float64 `yaml:"wheel_track"`
	// MiddleWheelDiameter defaults to WheelDiameter.
	MiddleWheelDiameter float64 `yaml:"middle_wheel_diameter,omitempty"`
	// MiddleWheelDistance is the forward offset of the lateral tracking wheel
	// from the turning center. Negative means behind it.
	MiddleWheelDistance float64 `yaml:"middle_wheel_distance,omitempty"`
	// MiddleTicksPerRev defaults to the drive encoder resolution.
	MiddleTicksPerRev float64 `yaml:"middle_ticks_per_rev,omitempty"`
}

// ChassisScales convert encoder ticks to chassis motion.
//
// Straight is ticks per meter of wheel travel. Turn is ticks per degree of
// chassis rotation, measured as (left-right)/2. Middle is tracking wheel ticks
// per meter.
type ChassisScales struct {
	WheelDiameter       float64
	WheelTrack          float64
	MiddleWheelDistance float64
	Straight            float64
	Turn                float64
	Middle              float64
}

// NewChassisScales derives scales from dimensions and the encoder resolution
// at the wheel.
func NewChassisScales(d Dimensions, ticksPerRev float64) (ChassisScales, error) {
	if d.WheelDiameter <= 0 || d.WheelTrack <= 0 {
		return ChassisScales{}, fmt.Errorf("%w: wheel diameter %g, track %g", ErrInvalidDimensions, d.WheelDiameter, d.WheelTrack)
	}
	if ticksPerRev <= 0 {
		return ChassisScales{}, fmt.Errorf("%w: ticks per revolution %g", ErrInvalidDimensions, ticksPerRev)
	}

	middleDiameter := d.MiddleWheelDiameter
	if middleDiameter <= 0 {
		middleDiameter = d.WheelDiameter
	}
	middleTPR := d.MiddleTicksPerRev
	if middleTPR <= 0 {
		middleTPR = ticksPerRev
	}

	straight := ticksPerRev / (math.Pi * d.WheelDiameter)
	return ChassisScales{
		WheelDiameter:       d.WheelDiameter,
		WheelTrack:          d.WheelTrack,
		MiddleWheelDistance: d.MiddleWheelDistance,
		Straight:            straight,
		Turn:                straight * d.WheelTrack / 2 * math.Pi / 180,
		Middle:              middleTPR / (math.Pi * middleDiameter),
	}, nil
}

// Validate reports whether the scales can be divided by.
func (s ChassisScales) Validate() error {
	if s.Straight <= 0 || s.Turn <= 0 || s.WheelTrack <= 0 {
		return fmt.Errorf("%w: straight %g, turn %g, track %g", ErrInvalidDimensions, s.Straight, s.Turn, s.WheelTrack)
	}
	return nil
}
