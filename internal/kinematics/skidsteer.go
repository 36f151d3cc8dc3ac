package kinematics

import (
	"errors"

	"github.com/san-kum/chassisctl/internal/device"
)

// SkidSteer drives a left and a right side. With a middle sensor it is the
// three-encoder variant, which additionally reports lateral tracking ticks.
type SkidSteer struct {
	limits

	left, right  device.Motor
	leftSensor   device.RotarySensor
	rightSensor  device.RotarySensor
	middleSensor device.RotarySensor
}

func NewSkidSteer(
	left, right device.Motor,
	leftSensor, rightSensor device.RotarySensor,
	maxVelocity, maxVoltage float64,
) *SkidSteer {
	s := &SkidSteer{
		left:        left,
		right:       right,
		leftSensor:  leftSensor,
		rightSensor: rightSensor,
	}
	s.SetMaxVelocity(maxVelocity)
	s.SetMaxVoltage(maxVoltage)
	return s
}

func NewThreeEncoderSkidSteer(
	left, right device.Motor,
	leftSensor, rightSensor, middleSensor device.RotarySensor,
	maxVelocity, maxVoltage float64,
) *SkidSteer {
	s := NewSkidSteer(left, right, leftSensor, rightSensor, maxVelocity, maxVoltage)
	s.middleSensor = middleSensor
	return s
}

func (s *SkidSteer) Kind() Kind {
	if s.middleSensor != nil {
		return KindThreeEncoderSkidSteer
	}
	return KindSkidSteer
}

func (s *SkidSteer) velocity(left, right float64) error {
	scale := s.MaxVelocity()
	return errors.Join(
		s.left.MoveVelocity(left*scale),
		s.right.MoveVelocity(right*scale),
	)
}

func (s *SkidSteer) voltage(left, right float64) error {
	scale := s.MaxVoltage()
	return errors.Join(
		s.left.MoveVoltage(left*scale),
		s.right.MoveVoltage(right*scale),
	)
}

func (s *SkidSteer) Forward(speed float64) error {
	v := clampUnit(speed)
	return s.velocity(v, v)
}

func (s *SkidSteer) DriveVector(forward, yaw float64) error {
	forward, yaw = clampUnit(forward), clampUnit(yaw)
	out := desaturate(forward+yaw, forward-yaw)
	return s.velocity(out[0], out[1])
}

func (s *SkidSteer) Rotate(speed float64) error {
	v := clampUnit(speed)
	return s.velocity(v, -v)
}

func (s *SkidSteer) Stop() error {
	return errors.Join(s.left.MoveVelocity(0), s.right.MoveVelocity(0))
}

func (s *SkidSteer) Tank(left, right, threshold float64) error {
	return s.voltage(
		deadband(clampUnit(left), threshold),
		deadband(clampUnit(right), threshold),
	)
}

func (s *SkidSteer) Arcade(forward, yaw, threshold float64) error {
	forward = deadband(clampUnit(forward), threshold)
	yaw = deadband(clampUnit(yaw), threshold)
	out := desaturate(forward+yaw, forward-yaw)
	return s.voltage(out[0], out[1])
}

func (s *SkidSteer) Left(speed float64) error {
	return s.left.MoveVelocity(clampUnit(speed) * s.MaxVelocity())
}

func (s *SkidSteer) Right(speed float64) error {
	return s.right.MoveVelocity(clampUnit(speed) * s.MaxVelocity())
}

func (s *SkidSteer) SensorVals() ([]float64, error) {
	sensors := []struct {
		name   string
		sensor device.RotarySensor
	}{
		{"left", s.leftSensor},
		{"right", s.rightSensor},
	}
	if s.middleSensor != nil {
		sensors = append(sensors, struct {
			name   string
			sensor device.RotarySensor
		}{"middle", s.middleSensor})
	}

	vals := make([]float64, len(sensors))
	for i, sn := range sensors {
		v, err := sn.sensor.Get()
		if err != nil {
			return nil, &device.SensorError{Sensor: sn.name, Err: err}
		}
		vals[i] = v
	}
	return vals, nil
}

func (s *SkidSteer) ResetSensors() error {
	errs := []error{s.leftSensor.Reset(), s.rightSensor.Reset()}
	if s.middleSensor != nil {
		errs = append(errs, s.middleSensor.Reset())
	}
	return errors.Join(errs...)
}

var _ Model = (*SkidSteer)(nil)
