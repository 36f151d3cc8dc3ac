package simbot

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/zap"

	"github.com/san-kum/chassisctl/internal/odometry"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// Observer is called after every step with the true pose.
type Observer interface {
	OnStep(t time.Duration, truth odometry.Pose)
}

type ObserverFunc func(t time.Duration, truth odometry.Pose)

func (f ObserverFunc) OnStep(t time.Duration, truth odometry.Pose) { f(t, truth) }

// World owns the plant state and the devices reading it.
type World struct {
	mu        sync.Mutex
	plant     *plant
	integ     Integrator
	state     State
	steps     int
	elapsed   time.Duration
	faults    *injector
	motors    []*Motor
	wheel     *TrackingWheel
	observers []Observer

	rate   *timeutil.Rate
	logger golog.Logger
}

func NewWorld(p Params, f Faults, logger golog.Logger) (*World, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	pl := newPlant(p, f.Slip)
	w := &World{
		plant:  pl,
		integ:  NewRK4(),
		state:  make(State, pl.dim()),
		faults: newInjector(f),
		rate:   timeutil.NewRate(timeutil.SystemClock()),
		logger: logger,
	}
	for i := 0; i < pl.n; i++ {
		w.motors = append(w.motors, &Motor{w: w, index: i})
	}
	if p.TrackingWheel {
		tpr := p.Dimensions.MiddleTicksPerRev
		if tpr <= 0 {
			tpr = p.Gearset.TicksPerRev()
		}
		w.wheel = &TrackingWheel{w: w, tpr: tpr}
	}

	if f.active() {
		logger.Infow("fault injection enabled",
			"read_failure_rate", f.ReadFailureRate,
			"encoder_noise", f.EncoderNoise,
			"slip", f.Slip,
			"seed", f.Seed,
		)
	}
	return w, nil
}

// SetIntegrator replaces the RK4 default.
func (w *World) SetIntegrator(in Integrator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.integ = in
}

func (w *World) AddObserver(o Observer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, o)
}

func (w *World) Params() Params { return w.plant.params }

// Motors returns the simulated motors in layout order.
func (w *World) Motors() []*Motor {
	out := make([]*Motor, len(w.motors))
	copy(out, w.motors)
	return out
}

// TrackingWheel returns nil unless Params.TrackingWheel is set.
func (w *World) TrackingWheel() *TrackingWheel { return w.wheel }

// Pose returns the true pose with heading in degrees.
func (w *World) Pose() odometry.Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.poseLocked()
}

func (w *World) poseLocked() odometry.Pose {
	return odometry.Pose{
		X:     w.state[idxX],
		Y:     w.state[idxY],
		Theta: w.state[idxTheta] * 180 / math.Pi,
	}
}

func (w *World) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

// Step advances the plant by dt with the commands currently held.
func (w *World) Step(dt time.Duration) error {
	if dt <= 0 {
		return fmt.Errorf("%w: step %v", ErrInvalidParams, dt)
	}

	w.mu.Lock()
	next := w.integ.Step(w.plant, w.state, w.elapsed.Seconds(), dt.Seconds())
	if !next.IsValid() {
		err := &StepError{Step: w.steps, Time: w.elapsed.Seconds(), State: w.state.Clone(), Wrapped: ErrInvalidState}
		w.mu.Unlock()
		return err
	}
	w.state = next
	w.steps++
	w.elapsed += dt
	t, truth := w.elapsed, w.poseLocked()
	observers := w.observers
	w.mu.Unlock()

	for _, o := range observers {
		o.OnStep(t, truth)
	}
	return nil
}

// Run steps the world in real time every period until ctx is done or the
// plant diverges.
func (w *World) Run(ctx context.Context, period time.Duration) error {
	w.logger.Debugw("simulation started", "layout", w.plant.params.Layout, "period", period)
	for {
		if err := w.Step(period); err != nil {
			w.logger.Errorw("simulation diverged", "error", err)
			return err
		}
		if err := w.rate.Delay(ctx, period); err != nil {
			w.logger.Debugw("simulation stopped", "elapsed", w.Elapsed(), "pose", w.Pose())
			return err
		}
	}
}
