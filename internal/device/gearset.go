package device

import (
	"fmt"
	"strings"
)

// Gearset is a motor cartridge. Its value is the rated output speed in rpm.
type Gearset int

const (
	GearsetInvalid Gearset = 0
	Red            Gearset = 100
	Green          Gearset = 200
	Blue           Gearset = 600
)

// RPM returns the rated velocity of the cartridge.
func (g Gearset) RPM() float64 {
	return float64(g)
}

// TicksPerRev returns the encoder resolution at the output shaft.
func (g Gearset) TicksPerRev() float64 {
	switch g {
	case Red:
		return 1800
	case Green:
		return 900
	case Blue:
		return 300
	default:
		return 0
	}
}

func (g Gearset) String() string {
	switch g {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return "invalid"
	}
}

// ParseGearset accepts a colour name or the internal ratio ("36", "18", "6").
func ParseGearset(s string) (Gearset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "36", "100":
		return Red, nil
	case "green", "18", "200":
		return Green, nil
	case "blue", "6", "600":
		return Blue, nil
	}
	return GearsetInvalid, fmt.Errorf("device: unknown gearset %q", s)
}

// GearsetRatioPair is a cartridge plus the external gear ratio after it.
type GearsetRatioPair struct {
	Internal Gearset
	Ratio    float64
}

func NewGearsetRatioPair(g Gearset, ratio float64) GearsetRatioPair {
	if ratio == 0 {
		ratio = 1
	}
	return GearsetRatioPair{Internal: g, Ratio: ratio}
}

// MaxVelocity is the wheel speed in rpm at full motor speed.
func (p GearsetRatioPair) MaxVelocity() float64 {
	return p.Internal.RPM() * p.Ratio
}
