package simbot

import (
	"math"
	"testing"
)

type oscillator struct{}

func (oscillator) Derive(x State, _ float64) State {
	return State{x[1], -x[0]}
}

func TestRK4Accuracy(t *testing.T) {
	integ := NewRK4()
	x := State{1, 0}
	dt := 0.01
	steps := 100
	for i := 0; i < steps; i++ {
		x = integ.Step(oscillator{}, x, float64(i)*dt, dt)
	}

	wantX := math.Cos(float64(steps) * dt)
	wantV := -math.Sin(float64(steps) * dt)
	if math.Abs(x[0]-wantX) > 1e-8 {
		t.Errorf("position error too large: got %.10f, expected %.10f", x[0], wantX)
	}
	if math.Abs(x[1]-wantV) > 1e-8 {
		t.Errorf("velocity error too large: got %.10f, expected %.10f", x[1], wantV)
	}
}

func TestRK4BeatsEuler(t *testing.T) {
	rk4, euler := NewRK4(), NewEuler()
	a, b := State{1, 0}, State{1, 0}
	dt := 0.05
	for i := 0; i < 200; i++ {
		a = rk4.Step(oscillator{}, a, float64(i)*dt, dt)
		b = euler.Step(oscillator{}, b, float64(i)*dt, dt)
	}

	want := math.Cos(200 * dt)
	if errRK4, errEuler := math.Abs(a[0]-want), math.Abs(b[0]-want); errRK4 >= errEuler {
		t.Errorf("rk4 error %g not below euler error %g", errRK4, errEuler)
	}
}

func TestStateIsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  bool
	}{
		{"finite", State{1, -2, 0}, true},
		{"nan", State{1, math.NaN()}, false},
		{"inf", State{math.Inf(-1)}, false},
		{"empty", State{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
