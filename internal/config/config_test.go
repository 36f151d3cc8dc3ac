package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/filter"
	"github.com/san-kum/chassisctl/internal/simbot"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Layout != "skid-steer" {
		t.Errorf("expected layout skid-steer, got %s", cfg.Layout)
	}
	if cfg.Gains != nil || cfg.Odometry != nil {
		t.Error("default config should select the integrated strategy")
	}
	if cfg.Sim.Period <= 0 || cfg.Sim.Timeout <= 0 {
		t.Error("sim period and timeout should be positive")
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := `
layout: skid-steer
gearset: blue
gains:
  distance: {kp: 0.003}
  turn: {kp: 0.005, kd: 0.0001}
odometry:
  move_threshold: 0.05
  turn_threshold: 3
settle:
  error: 20
  derivative: 5
  time: 150ms
faults:
  slip: 0.1
  seed: 9
script:
  - drive: 0.5
  - turn: -90
  - point: [1, 0.5]
    backwards: true
  - heading: 45
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gains.Turn.Kd != 0.0001 || cfg.Gains.Distance.Kp != 0.003 {
		t.Errorf("gains not loaded: %+v", cfg.Gains)
	}
	if cfg.Settle.Time != 150*time.Millisecond {
		t.Errorf("expected settle time 150ms, got %v", cfg.Settle.Time)
	}
	if cfg.Sim.Period != DefaultPeriod {
		t.Errorf("unset sim period should keep default, got %v", cfg.Sim.Period)
	}
	if cfg.Faults.Slip != 0.1 || cfg.Faults.Seed != 9 {
		t.Errorf("faults not loaded: %+v", cfg.Faults)
	}

	kinds := []StepKind{StepDrive, StepTurn, StepPoint, StepHeading}
	if len(cfg.Script) != len(kinds) {
		t.Fatalf("expected %d steps, got %d", len(kinds), len(cfg.Script))
	}
	for i, want := range kinds {
		if got := cfg.Script[i].Kind(); got != want {
			t.Errorf("step %d: expected %v, got %v", i, want, got)
		}
	}
	if !cfg.Script[2].Backwards {
		t.Error("backwards flag not loaded")
	}

	pair, err := cfg.GearsetPair()
	if err != nil || pair.Internal != device.Blue {
		t.Errorf("expected blue gearset, got %v (%v)", pair.Internal, err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "square.yaml")
	want := GetPreset("skid-steer", "square")
	if err := Save(path, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got.Script) != len(want.Script) || got.Settle != want.Settle {
		t.Errorf("saved config changed: %+v", got)
	}
	if got.Odometry == nil || *got.Odometry != *want.Odometry {
		t.Errorf("odometry thresholds lost: %+v", got.Odometry)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown layout", func(c *Config) { c.Layout = "tricycle" }},
		{"unknown gearset", func(c *Config) { c.Gearset = "purple" }},
		{"zero track", func(c *Config) { c.Dimensions.WheelTrack = 0 }},
		{"bad filter", func(c *Config) { c.DerivativeFilter = "kalman" }},
		{"zero period", func(c *Config) { c.Sim.Period = 0 }},
		{"x-drive odometry", func(c *Config) {
			c.Layout = "x-drive"
			c.Odometry = &OdometryConfig{}
		}},
		{"slip", func(c *Config) { c.Faults.Slip = 2 }},
		{"empty step", func(c *Config) { c.Script = []Step{{}} }},
		{"two motions in one step", func(c *Config) {
			s := Drive(1)
			s.Turn = Turn(90).Turn
			c.Script = []Step{s}
		}},
		{"short point", func(c *Config) { c.Script = []Step{{Point: []float64{1}}} }},
		{"point without odometry", func(c *Config) { c.Script = []Step{Point(1, 1)} }},
		{"heading without odometry", func(c *Config) { c.Script = []Step{Heading(90)} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestFilterFactory(t *testing.T) {
	tests := []struct {
		value string
		want  func(filter.Filter) bool
	}{
		{"", nil},
		{"none", nil},
		{"average:3", func(f filter.Filter) bool { a, ok := f.(*filter.Average); return ok && a.Taps() == 3 }},
		{"EMA:0.5", func(f filter.Filter) bool { _, ok := f.(*filter.EMA); return ok }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.DerivativeFilter = tt.value
		factory, err := cfg.FilterFactory()
		if err != nil {
			t.Errorf("%q: %v", tt.value, err)
			continue
		}
		if tt.want == nil {
			if factory != nil {
				t.Errorf("%q: expected no filter", tt.value)
			}
			continue
		}
		if factory == nil || !tt.want(factory()) {
			t.Errorf("%q: wrong filter", tt.value)
		}
	}

	for _, bad := range []string{"average:0", "average:x", "ema:0", "ema:1.5"} {
		cfg := DefaultConfig()
		cfg.DerivativeFilter = bad
		if _, err := cfg.FilterFactory(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%q: expected ErrInvalidConfig, got %v", bad, err)
		}
	}
}

func TestSimParams(t *testing.T) {
	cfg := GetPreset("skid-steer", "tracking")
	p := cfg.SimParams()
	if !p.TrackingWheel || p.Dimensions.MiddleWheelDistance != 0.1 {
		t.Errorf("tracking wheel not carried: %+v", p)
	}
	if p.Layout != simbot.LayoutSkidSteer || p.Gearset != device.Green {
		t.Errorf("unexpected plant: %v %v", p.Layout, p.Gearset)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("plant invalid: %v", err)
	}

	x := GetPreset("x-drive", "onboard").SimParams()
	if x.Layout != simbot.LayoutXDrive || x.Gearset != device.Blue {
		t.Errorf("unexpected plant: %v %v", x.Layout, x.Gearset)
	}
}

func TestPresets(t *testing.T) {
	for _, layout := range ListLayouts() {
		names := ListPresets(layout)
		if len(names) == 0 {
			t.Errorf("expected presets for %s", layout)
		}
		for _, name := range names {
			cfg := GetPreset(layout, name)
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", layout, name, err)
			}
			if len(cfg.Script) == 0 {
				t.Errorf("%s/%s: empty script", layout, name)
			}
		}
	}

	a, b := GetPreset("skid-steer", "square"), GetPreset("skid-steer", "square")
	a.Gains.Distance.Kp = 1
	if b.Gains.Distance.Kp == 1 {
		t.Error("presets share gains")
	}
}

func TestGetPresetNotFound(t *testing.T) {
	if GetPreset("skid-steer", "nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if GetPreset("nonexistent", "square") != nil {
		t.Error("expected nil for nonexistent layout")
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent layout")
	}
}
