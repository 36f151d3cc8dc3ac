package kinematics

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/chassisctl/internal/device"
)

// ChassisVelocity is a normalized body-frame velocity. Strafe is positive to
// the right, Yaw is positive clockwise.
type ChassisVelocity struct {
	Forward float64
	Strafe  float64
	Yaw     float64
}

// Wheel order for X-drive vectors.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// xdriveTransform maps [forward, strafe, yaw] to wheel speeds in the order
// top-left, top-right, bottom-right, bottom-left.
var xdriveTransform = mat.NewDense(4, 3, []float64{
	1, 1, 1,
	1, -1, -1,
	1, 1, -1,
	1, -1, 1,
})

// xdriveInverse is the pseudo-inverse of xdriveTransform. The columns are
// orthogonal with squared norm 4, so it is the transpose over 4.
var xdriveInverse = func() *mat.Dense {
	var inv mat.Dense
	inv.Scale(0.25, xdriveTransform.T())
	return &inv
}()

// ToWheels returns unscaled wheel speeds for v.
func ToWheels(v ChassisVelocity) [4]float64 {
	var out mat.VecDense
	out.MulVec(xdriveTransform, mat.NewVecDense(3, []float64{v.Forward, v.Strafe, v.Yaw}))
	return [4]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2), out.AtVec(3)}
}

// FromWheels returns the least-squares chassis velocity for wheel speeds.
func FromWheels(w [4]float64) ChassisVelocity {
	var out mat.VecDense
	out.MulVec(xdriveInverse, mat.NewVecDense(4, w[:]))
	return ChassisVelocity{Forward: out.AtVec(0), Strafe: out.AtVec(1), Yaw: out.AtVec(2)}
}

// XDrive is a four-wheel omnidirectional layout with wheels at 45 degrees.
// Odometry is not supported; the left and right sensors serve encoder-based
// control only.
type XDrive struct {
	limits

	motors      [4]device.Motor
	leftSensor  device.RotarySensor
	rightSensor device.RotarySensor
}

func NewXDrive(
	topLeft, topRight, bottomRight, bottomLeft device.Motor,
	leftSensor, rightSensor device.RotarySensor,
	maxVelocity, maxVoltage float64,
) *XDrive {
	x := &XDrive{
		motors:      [4]device.Motor{topLeft, topRight, bottomRight, bottomLeft},
		leftSensor:  leftSensor,
		rightSensor: rightSensor,
	}
	x.SetMaxVelocity(maxVelocity)
	x.SetMaxVoltage(maxVoltage)
	return x
}

func (x *XDrive) Kind() Kind { return KindXDrive }

// Motors returns the wheels in top-left, top-right, bottom-right, bottom-left
// order.
func (x *XDrive) Motors() [4]device.Motor { return x.motors }

func (x *XDrive) velocity(w [4]float64) error {
	scale := x.MaxVelocity()
	errs := make([]error, len(x.motors))
	for i, m := range x.motors {
		errs[i] = m.MoveVelocity(w[i] * scale)
	}
	return errors.Join(errs...)
}

func (x *XDrive) voltage(w [4]float64) error {
	scale := x.MaxVoltage()
	errs := make([]error, len(x.motors))
	for i, m := range x.motors {
		errs[i] = m.MoveVoltage(w[i] * scale)
	}
	return errors.Join(errs...)
}

func saturated(v ChassisVelocity) [4]float64 {
	w := ToWheels(v)
	d := desaturate(w[:]...)
	return [4]float64{d[0], d[1], d[2], d[3]}
}

func (x *XDrive) Forward(speed float64) error {
	return x.velocity(ToWheels(ChassisVelocity{Forward: clampUnit(speed)}))
}

func (x *XDrive) DriveVector(forward, yaw float64) error {
	return x.velocity(saturated(ChassisVelocity{Forward: clampUnit(forward), Yaw: clampUnit(yaw)}))
}

func (x *XDrive) Rotate(speed float64) error {
	return x.velocity(ToWheels(ChassisVelocity{Yaw: clampUnit(speed)}))
}

// Strafe drives sideways, positive to the right.
func (x *XDrive) Strafe(speed float64) error {
	return x.velocity(ToWheels(ChassisVelocity{Strafe: clampUnit(speed)}))
}

func (x *XDrive) Stop() error {
	return x.velocity([4]float64{})
}

func (x *XDrive) Tank(left, right, threshold float64) error {
	l := deadband(clampUnit(left), threshold)
	r := deadband(clampUnit(right), threshold)
	return x.voltage([4]float64{TopLeft: l, TopRight: r, BottomRight: r, BottomLeft: l})
}

func (x *XDrive) Arcade(forward, yaw, threshold float64) error {
	return x.XArcade(0, forward, yaw, threshold)
}

// XArcade is voltage control with all three degrees of freedom.
func (x *XDrive) XArcade(strafe, forward, yaw, threshold float64) error {
	return x.voltage(saturated(ChassisVelocity{
		Forward: deadband(clampUnit(forward), threshold),
		Strafe:  deadband(clampUnit(strafe), threshold),
		Yaw:     deadband(clampUnit(yaw), threshold),
	}))
}

func (x *XDrive) Left(speed float64) error {
	v := clampUnit(speed) * x.MaxVelocity()
	return errors.Join(x.motors[TopLeft].MoveVelocity(v), x.motors[BottomLeft].MoveVelocity(v))
}

func (x *XDrive) Right(speed float64) error {
	v := clampUnit(speed) * x.MaxVelocity()
	return errors.Join(x.motors[TopRight].MoveVelocity(v), x.motors[BottomRight].MoveVelocity(v))
}

func (x *XDrive) SensorVals() ([]float64, error) {
	l, err := x.leftSensor.Get()
	if err != nil {
		return nil, &device.SensorError{Sensor: "left", Err: err}
	}
	r, err := x.rightSensor.Get()
	if err != nil {
		return nil, &device.SensorError{Sensor: "right", Err: err}
	}
	return []float64{l, r}, nil
}

func (x *XDrive) ResetSensors() error {
	return errors.Join(x.leftSensor.Reset(), x.rightSensor.Reset())
}

var _ Model = (*XDrive)(nil)
