package control

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"

	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

type fakeMotor struct {
	velocity    float64
	absolute    float64
	absoluteVel float64
	position    float64
	readErr     error
	commands    int
}

func (f *fakeMotor) MoveVelocity(rpm float64) error { f.velocity = rpm; f.commands++; return nil }
func (f *fakeMotor) MoveVoltage(float64) error      { f.commands++; return nil }
func (f *fakeMotor) MoveAbsolute(p, rpm float64) error {
	f.absolute, f.absoluteVel = p, rpm
	f.commands++
	return nil
}
func (f *fakeMotor) Position() (float64, error) { return f.position, f.readErr }
func (f *fakeMotor) TarePosition() error        { f.position = 0; return nil }
func (f *fakeMotor) Gearset() device.Gearset    { return device.Green }

func TestVelMath(t *testing.T) {
	clock := timeutil.NewManualClock(epoch)
	vm := NewVelMath(900, nil, timeutil.NewTimer(clock))

	if v := vm.Step(0); v != 0 {
		t.Errorf("first step should prime at 0, got %f", v)
	}

	clock.Advance(time.Second)
	if v := vm.Step(900); math.Abs(v-60) > 1e-9 {
		t.Errorf("one revolution per second should be 60 rpm, got %f", v)
	}
	if a := vm.Accel(); math.Abs(a-60) > 1e-9 {
		t.Errorf("expected accel 60 rpm/s, got %f", a)
	}

	vm.Reset()
	if vm.Velocity() != 0 {
		t.Errorf("reset should clear velocity, got %f", vm.Velocity())
	}
}

func TestDefaultVelMathSmooths(t *testing.T) {
	clock := timeutil.NewManualClock(epoch)
	vm := NewDefaultVelMath(900, clock)

	vm.Step(0)
	clock.Advance(time.Second)
	if v := vm.Step(900); math.Abs(v-30) > 1e-9 {
		t.Errorf("two-tap average should halve the first sample, got %f", v)
	}
}

func TestVelPIDAccumulates(t *testing.T) {
	clock := timeutil.NewManualClock(epoch)
	tu := timeutil.Factory{Clock: clock, Settle: timeutil.DefaultSettleParams()}.Create()
	vm := NewVelMath(900, nil, timeutil.NewTimer(clock))
	pid := NewVelPIDController(VelGains{Kp: 0.01}, vm, tu, nil)
	pid.SetTarget(60)

	if out := pid.Step(0); math.Abs(out-0.6) > 1e-9 {
		t.Fatalf("expected 0.6, got %f", out)
	}

	// 9 ticks in 10ms at 900 ticks/rev is 60 rpm: on target, output holds.
	clock.Advance(10 * time.Millisecond)
	if out := pid.Step(9); math.Abs(out-0.6) > 1e-9 {
		t.Errorf("on-target velocity should hold the output, got %f", out)
	}
	if math.Abs(pid.Error()) > 1e-6 {
		t.Errorf("expected zero error, got %f", pid.Error())
	}
}

func TestVelPIDFeedForward(t *testing.T) {
	clock := timeutil.NewManualClock(epoch)
	tu := timeutil.Factory{Clock: clock}.Create()
	pid := NewVelPIDController(VelGains{Kf: 0.005}, NewVelMath(900, nil, timeutil.NewTimer(clock)), tu, nil)
	pid.SetTarget(100)

	if out := pid.Step(0); math.Abs(out-0.5) > 1e-9 {
		t.Errorf("expected feed-forward 0.5, got %f", out)
	}
}

func TestMotorVelocityController(t *testing.T) {
	clock := timeutil.NewManualClock(epoch)
	tu := timeutil.Factory{Clock: clock}.Create()
	inner := NewVelPIDController(VelGains{Kp: 1}, NewVelMath(900, nil, timeutil.NewTimer(clock)), tu, nil)
	inner.SetOutputLimits(200, -200)

	m := &fakeMotor{}
	c := NewMotorVelocityController(m, inner, golog.NewTestLogger(t))
	c.SetTarget(150)

	out := c.Step(0)
	if out != 150 {
		t.Errorf("expected output 150, got %f", out)
	}
	if m.velocity != out {
		t.Errorf("motor should receive the output, got %f", m.velocity)
	}
	if c.Target() != 150 {
		t.Errorf("target not delegated: %f", c.Target())
	}

	c.SetDisabled(true)
	if !inner.IsDisabled() {
		t.Error("disable not delegated")
	}
}

func TestIntegratedControllerTare(t *testing.T) {
	clock := timeutil.NewManualClock(epoch)
	tu := timeutil.Factory{Clock: clock, Settle: timeutil.SettleParams{AtTargetError: 5, AtTargetDerivative: 5}}.Create()
	m := &fakeMotor{position: 100}
	c := NewIntegratedController(m, device.NewGearsetRatioPair(device.Green, 1), 200, tu, golog.NewTestLogger(t))

	if err := c.Tare(); err != nil {
		t.Fatal(err)
	}
	c.SetTarget(50)
	if m.absolute != 150 || m.absoluteVel != 200 {
		t.Errorf("expected MoveAbsolute(150, 200), got (%f, %f)", m.absolute, m.absoluteVel)
	}
	if c.Error() != 50 {
		t.Errorf("expected error 50, got %f", c.Error())
	}
	if c.IsSettled() {
		t.Error("should not be settled far from target")
	}

	// Arriving jumps the error by 50, more than the derivative tolerance, so
	// the first check on target is not settled yet.
	m.position = 150
	if c.IsSettled() {
		t.Error("should not settle on the check where the error jumped")
	}
	clock.Advance(10 * time.Millisecond)
	if !c.IsSettled() {
		t.Errorf("should settle on target, error %f", c.Error())
	}
}

func TestIntegratedControllerReadFailureKeepsLastError(t *testing.T) {
	tu := timeutil.Factory{Clock: timeutil.NewManualClock(epoch)}.Create()
	m := &fakeMotor{}
	c := NewIntegratedController(m, device.NewGearsetRatioPair(device.Green, 1), 200, tu, golog.NewTestLogger(t))

	c.SetTarget(30)
	if c.Error() != 30 {
		t.Fatalf("expected error 30, got %f", c.Error())
	}

	m.readErr = errors.New("bus timeout")
	if c.Error() != 30 {
		t.Errorf("failed read should keep last error, got %f", c.Error())
	}
}

func TestIntegratedControllerDisable(t *testing.T) {
	tu := timeutil.Factory{Clock: timeutil.NewManualClock(epoch)}.Create()
	m := &fakeMotor{velocity: 50}
	c := NewIntegratedController(m, device.NewGearsetRatioPair(device.Green, 1), 200, tu, golog.NewTestLogger(t))
	c.SetTarget(1000)

	c.SetDisabled(true)
	if m.velocity != 0 {
		t.Errorf("disabling should stop the motor, velocity %f", m.velocity)
	}
	if !c.IsSettled() {
		t.Error("disabled controller reports settled")
	}
	if c.Output() != 0 {
		t.Errorf("disabled output should be 0, got %f", c.Output())
	}

	m.absolute = 0
	c.SetDisabled(false)
	if m.absolute != 1000 {
		t.Errorf("enabling should resend the target, got %f", m.absolute)
	}
}

func TestIntegratedControllerResetHoldsPosition(t *testing.T) {
	tu := timeutil.Factory{Clock: timeutil.NewManualClock(epoch)}.Create()
	m := &fakeMotor{position: 40}
	c := NewIntegratedController(m, device.NewGearsetRatioPair(device.Green, 1), 200, tu, golog.NewTestLogger(t))
	c.SetTarget(500)

	c.Reset()
	if c.Target() != 40 {
		t.Errorf("reset should hold current position, target %f", c.Target())
	}
}
