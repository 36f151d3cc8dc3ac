// Package kinematics maps chassis-level motion onto drivetrain motors and
// reads the drivetrain's encoders back.
//
// Inputs to motion methods are normalized to [-1, 1] and clamped, never
// rejected. Velocity methods scale by the max velocity in rpm, Tank and Arcade
// scale by the max voltage in millivolts. Positive yaw turns clockwise.
package kinematics

import (
	"math"
	"sync"
)

// Kind identifies a kinematics layout.
type Kind int

const (
	KindSkidSteer Kind = iota
	KindThreeEncoderSkidSteer
	KindXDrive
)

func (k Kind) String() string {
	switch k {
	case KindSkidSteer:
		return "skid-steer"
	case KindThreeEncoderSkidSteer:
		return "three-encoder skid-steer"
	case KindXDrive:
		return "x-drive"
	default:
		return "unknown"
	}
}

// Model is the capability set shared by every drivetrain layout.
type Model interface {
	Kind() Kind

	Forward(speed float64) error
	// DriveVector drives forward while turning. The larger side is scaled
	// down to 1 if the sum saturates.
	DriveVector(forward, yaw float64) error
	Rotate(speed float64) error
	Stop() error
	Tank(left, right, threshold float64) error
	Arcade(forward, yaw, threshold float64) error
	Left(speed float64) error
	Right(speed float64) error

	// SensorVals returns [left, right] or [left, right, middle] ticks.
	SensorVals() ([]float64, error)
	ResetSensors() error

	SetMaxVelocity(rpm float64)
	MaxVelocity() float64
	SetMaxVoltage(millivolts float64)
	MaxVoltage() float64
}

// DefaultMaxVoltage is the full-scale motor voltage in millivolts.
const DefaultMaxVoltage = 12000

type limits struct {
	mu          sync.RWMutex
	maxVelocity float64
	maxVoltage  float64
}

func (l *limits) SetMaxVelocity(rpm float64) {
	l.mu.Lock()
	l.maxVelocity = math.Abs(rpm)
	l.mu.Unlock()
}

func (l *limits) MaxVelocity() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxVelocity
}

func (l *limits) SetMaxVoltage(millivolts float64) {
	l.mu.Lock()
	l.maxVoltage = math.Abs(millivolts)
	l.mu.Unlock()
}

func (l *limits) MaxVoltage() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxVoltage
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func deadband(v, threshold float64) float64 {
	if math.Abs(v) <= threshold {
		return 0
	}
	return v
}

// desaturate scales vals so that none exceeds 1 in magnitude, preserving
// their ratios.
func desaturate(vals ...float64) []float64 {
	peak := 1.0
	for _, v := range vals {
		peak = math.Max(peak, math.Abs(v))
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v / peak
	}
	return out
}
