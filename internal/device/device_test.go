package device

import (
	"errors"
	"testing"
)

type fakeMotor struct {
	velocity  float64
	voltage   float64
	target    float64
	position  float64
	readErr   error
	cmdErr    error
	tareCalls int
}

func (f *fakeMotor) MoveVelocity(rpm float64) error { f.velocity = rpm; return f.cmdErr }
func (f *fakeMotor) MoveVoltage(mv float64) error   { f.voltage = mv; return f.cmdErr }
func (f *fakeMotor) MoveAbsolute(p, rpm float64) error {
	f.target = p
	return f.cmdErr
}
func (f *fakeMotor) Position() (float64, error) { return f.position, f.readErr }
func (f *fakeMotor) TarePosition() error        { f.tareCalls++; f.position = 0; return nil }
func (f *fakeMotor) Gearset() Gearset           { return Green }

func TestParseGearset(t *testing.T) {
	tests := []struct {
		in   string
		want Gearset
	}{
		{"red", Red},
		{"Green", Green},
		{" blue ", Blue},
		{"36", Red},
		{"18", Green},
		{"6", Blue},
	}

	for _, tt := range tests {
		got, err := ParseGearset(tt.in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}

	if _, err := ParseGearset("purple"); err == nil {
		t.Error("expected error for unknown gearset")
	}
}

func TestGearsetRatioPair(t *testing.T) {
	p := NewGearsetRatioPair(Green, 0)
	if p.Ratio != 1 {
		t.Errorf("expected default ratio 1, got %f", p.Ratio)
	}

	p = NewGearsetRatioPair(Blue, 0.6)
	if p.MaxVelocity() != 360 {
		t.Errorf("expected 360 rpm, got %f", p.MaxVelocity())
	}
	if Red.TicksPerRev() != 1800 || Green.TicksPerRev() != 900 || Blue.TicksPerRev() != 300 {
		t.Error("unexpected ticks per rev")
	}
}

func TestIntegratedEncoderWrapsReadFailure(t *testing.T) {
	m := &fakeMotor{position: 42}
	enc := NewIntegratedEncoder(m)

	v, err := enc.Get()
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %f (%v)", v, err)
	}

	m.readErr = errors.New("bus timeout")
	if _, err := enc.Get(); !errors.Is(err, ErrSensorRead) {
		t.Errorf("expected ErrSensorRead, got %v", err)
	}

	if err := enc.Reset(); err != nil {
		t.Fatal(err)
	}
	if m.tareCalls != 1 {
		t.Errorf("expected reset to tare the motor")
	}
}

func TestMotorGroupBroadcasts(t *testing.T) {
	a, b := &fakeMotor{position: 10}, &fakeMotor{position: 20}
	g := NewMotorGroup(a, b)

	if err := g.MoveVelocity(50); err != nil {
		t.Fatal(err)
	}
	if a.velocity != 50 || b.velocity != 50 {
		t.Errorf("velocity not broadcast: %f %f", a.velocity, b.velocity)
	}

	pos, _ := g.Position()
	if pos != 10 {
		t.Errorf("expected first motor position, got %f", pos)
	}

	b.cmdErr = errors.New("stalled")
	if err := g.MoveVoltage(6000); err == nil {
		t.Error("expected joined error from failing motor")
	}
	if a.voltage != 6000 {
		t.Error("healthy motor should still be commanded")
	}

	if _, err := NewMotorGroup().Position(); !errors.Is(err, ErrSensorRead) {
		t.Errorf("expected ErrSensorRead from empty group, got %v", err)
	}
}
