package simbot

import (
	"math"

	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/kinematics"
)

// Motor is one simulated drive motor with its integrated encoder and onboard
// position controller.
type Motor struct {
	w     *World
	index int
	// tare is the raw position, in revolutions, that reads as zero.
	tare float64
}

func (m *Motor) MoveVelocity(rpm float64) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	m.w.plant.commands[m.index] = command{mode: modeVelocity, rpm: rpm}
	return nil
}

func (m *Motor) MoveVoltage(millivolts float64) error {
	return m.MoveVelocity(millivolts / kinematics.DefaultMaxVoltage * m.w.plant.maxRPM)
}

func (m *Motor) MoveAbsolute(position, rpm float64) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	p := m.w.plant
	limit := math.Abs(rpm)
	if limit == 0 || limit > p.maxRPM {
		limit = p.maxRPM
	}
	p.commands[m.index] = command{
		mode:   modeAbsolute,
		target: m.tare + position/p.tpr,
		limit:  limit,
	}
	return nil
}

func (m *Motor) Position() (float64, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	p := m.w.plant
	return m.w.faults.read((m.w.state[p.posIdx(m.index)] - m.tare) * p.tpr)
}

func (m *Motor) TarePosition() error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	m.tare = m.w.state[m.w.plant.posIdx(m.index)]
	return nil
}

func (m *Motor) Gearset() device.Gearset { return m.w.plant.params.Gearset }

// Velocity returns the actual motor velocity in rpm, free of faults.
func (m *Motor) Velocity() float64 {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	return m.w.state[m.w.plant.velIdx(m.index)]
}

// TrackingWheel is the unpowered lateral wheel of a three-encoder chassis.
type TrackingWheel struct {
	w    *World
	tpr  float64
	tare float64
}

func (t *TrackingWheel) Get() (float64, error) {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.w.faults.read((t.w.state[t.w.plant.middleIdx()] - t.tare) * t.tpr)
}

func (t *TrackingWheel) Reset() error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.tare = t.w.state[t.w.plant.middleIdx()]
	return nil
}

var (
	_ device.Motor        = (*Motor)(nil)
	_ device.RotarySensor = (*TrackingWheel)(nil)
)
