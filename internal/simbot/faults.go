package simbot

import (
	"fmt"
	"math/rand"
)

// Faults perturbs sensor reads and ground contact. The zero value is a
// perfect drivetrain.
type Faults struct {
	// ReadFailureRate is the probability that a position read fails.
	ReadFailureRate float64 `yaml:"read_failure_rate,omitempty" json:"read_failure_rate,omitempty"`
	// EncoderNoise is the standard deviation, in ticks, added to each read.
	EncoderNoise float64 `yaml:"encoder_noise,omitempty" json:"encoder_noise,omitempty"`
	// Slip is the fraction of wheel travel lost to the ground.
	Slip float64 `yaml:"slip,omitempty" json:"slip,omitempty"`
	Seed int64   `yaml:"seed,omitempty" json:"seed,omitempty"`
}

func (f Faults) Validate() error {
	if f.ReadFailureRate < 0 || f.ReadFailureRate > 1 {
		return fmt.Errorf("%w: read failure rate %g not in [0, 1]", ErrInvalidParams, f.ReadFailureRate)
	}
	if f.EncoderNoise < 0 {
		return fmt.Errorf("%w: negative encoder noise %g", ErrInvalidParams, f.EncoderNoise)
	}
	if f.Slip < 0 || f.Slip >= 1 {
		return fmt.Errorf("%w: slip %g not in [0, 1)", ErrInvalidParams, f.Slip)
	}
	return nil
}

func (f Faults) active() bool {
	return f.ReadFailureRate > 0 || f.EncoderNoise > 0 || f.Slip > 0
}

// injector applies Faults to reads. The caller holds the world lock.
type injector struct {
	faults Faults
	rng    *rand.Rand
}

func newInjector(f Faults) *injector {
	return &injector{faults: f, rng: rand.New(rand.NewSource(f.Seed))}
}

func (in *injector) read(ticks float64) (float64, error) {
	if in.faults.ReadFailureRate > 0 && in.rng.Float64() < in.faults.ReadFailureRate {
		return 0, ErrInjectedFault
	}
	if in.faults.EncoderNoise > 0 {
		ticks += in.rng.NormFloat64() * in.faults.EncoderNoise
	}
	return ticks, nil
}
