package device

import "errors"

// MotorGroup drives several motors as one. Position and gearset come from the
// first motor.
type MotorGroup struct {
	motors []Motor
}

func NewMotorGroup(motors ...Motor) *MotorGroup {
	return &MotorGroup{motors: motors}
}

func (g *MotorGroup) each(fn func(Motor) error) error {
	var errs []error
	for _, m := range g.motors {
		if err := fn(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *MotorGroup) MoveVelocity(rpm float64) error {
	return g.each(func(m Motor) error { return m.MoveVelocity(rpm) })
}

func (g *MotorGroup) MoveVoltage(millivolts float64) error {
	return g.each(func(m Motor) error { return m.MoveVoltage(millivolts) })
}

func (g *MotorGroup) MoveAbsolute(position, rpm float64) error {
	return g.each(func(m Motor) error { return m.MoveAbsolute(position, rpm) })
}

func (g *MotorGroup) Position() (float64, error) {
	if len(g.motors) == 0 {
		return 0, &SensorError{Sensor: "empty motor group"}
	}
	return g.motors[0].Position()
}

func (g *MotorGroup) TarePosition() error {
	return g.each(func(m Motor) error { return m.TarePosition() })
}

func (g *MotorGroup) Gearset() Gearset {
	if len(g.motors) == 0 {
		return GearsetInvalid
	}
	return g.motors[0].Gearset()
}

func (g *MotorGroup) Len() int { return len(g.motors) }

var _ Motor = (*MotorGroup)(nil)
