// Package device defines the motor and rotary sensor contracts the chassis
// subsystem consumes. Drivers live outside this module; package simbot provides a
// simulated implementation.
//
// Handles are shared: the same [Motor] may be held by a kinematics model, an
// integrated position controller and an encoder adapter at once. Nothing in
// this package owns the underlying driver.
package device

// Motor is a smart motor with an onboard encoder and position controller.
type Motor interface {
	// MoveVelocity commands a velocity in rpm.
	MoveVelocity(rpm float64) error
	// MoveVoltage commands an open-loop voltage in millivolts.
	MoveVoltage(millivolts float64) error
	// MoveAbsolute hands the target position (encoder ticks) to the onboard
	// controller, limited to rpm.
	MoveAbsolute(position, rpm float64) error
	// Position returns the encoder position in ticks.
	Position() (float64, error)
	TarePosition() error
	Gearset() Gearset
}

// RotarySensor is a continuous tick counter.
type RotarySensor interface {
	Get() (float64, error)
	Reset() error
}

// IntegratedEncoder exposes a motor's own encoder as a RotarySensor.
type IntegratedEncoder struct {
	motor Motor
}

func NewIntegratedEncoder(m Motor) *IntegratedEncoder {
	return &IntegratedEncoder{motor: m}
}

func (e *IntegratedEncoder) Get() (float64, error) {
	pos, err := e.motor.Position()
	if err != nil {
		return 0, &SensorError{Sensor: "integrated encoder", Err: err}
	}
	return pos, nil
}

func (e *IntegratedEncoder) Reset() error {
	return e.motor.TarePosition()
}

var _ RotarySensor = (*IntegratedEncoder)(nil)
