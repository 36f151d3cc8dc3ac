package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/chassisctl/internal/chassis"
	"github.com/san-kum/chassisctl/internal/config"
	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/metrics"
	"github.com/san-kum/chassisctl/internal/odometry"
	"github.com/san-kum/chassisctl/internal/simbot"
	"github.com/san-kum/chassisctl/internal/storage"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// TracePeriod is the simulated time between recorded samples.
const TracePeriod = 20 * time.Millisecond

// Step outcomes.
const (
	OutcomeSettled  = "settled"
	OutcomeStalled  = "stalled"
	OutcomeCanceled = "canceled"
	OutcomeFailed   = "failed"
)

// Result is what a run produced.
type Result struct {
	Plan    chassis.Plan
	Steps   []storage.StepResult
	Trace   []metrics.Sample
	Metrics map[string]float64
	Final   odometry.Pose
	Elapsed time.Duration
}

// Experiment drives a configured chassis through its script on a simulated
// robot.
type Experiment struct {
	cfg      *config.Config
	registry *Registry
	logger   golog.Logger

	world   *simbot.World
	ctrl    chassis.ChassisController
	odom    chassis.OdomChassisController
	plan    chassis.Plan
	metrics []metrics.Metric

	// Owned by the world goroutine while running.
	trace      []metrics.Sample
	lastSample time.Duration
}

// New prepares an experiment. A nil logger discards output.
func New(cfg *config.Config, registry *Registry, logger golog.Logger) *Experiment {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Experiment{cfg: cfg, registry: registry, logger: logger}
}

// Setup validates the config, creates the simulated robot and builds the
// chassis controller on it. The controller's goroutines start here.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	integrator, err := e.registry.GetIntegrator(e.cfg.Sim.Integrator)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	world, err := simbot.NewWorld(e.cfg.SimParams(), e.cfg.Faults, e.logger)
	if err != nil {
		return err
	}
	world.SetIntegrator(integrator)

	b, err := e.builder(world)
	if err != nil {
		return err
	}
	plan, err := b.Plan()
	if err != nil {
		return err
	}
	if plan.Strategy.OdometryLoop() {
		e.odom, err = b.BuildOdometry()
		e.ctrl = e.odom
	} else {
		e.ctrl, err = b.Build()
	}
	if err != nil {
		return err
	}

	e.world = world
	e.plan = plan
	e.metrics = e.registry.DefaultMetrics(plan)
	e.trace = nil
	e.lastSample = -TracePeriod
	world.AddObserver(simbot.ObserverFunc(e.observe))

	e.logger.Infow("experiment ready",
		"layout", plan.Layout,
		"kinematics", plan.Kinematics,
		"strategy", plan.Strategy,
		"estimator", plan.Estimator,
		"steps", len(e.cfg.Script),
	)
	return nil
}

func (e *Experiment) builder(w *simbot.World) (*chassis.Builder, error) {
	pair, err := e.cfg.GearsetPair()
	if err != nil {
		return nil, err
	}
	derivative, err := e.cfg.FilterFactory()
	if err != nil {
		return nil, err
	}

	b := chassis.NewBuilder(e.logger).
		WithGearset(pair).
		WithDimensions(e.cfg.Dimensions).
		WithStallTimeout(e.cfg.StallTimeout).
		WithTimeUtilFactory(timeutil.DefaultFactory().WithSettle(e.cfg.SettleParams()))

	m := w.Motors()
	if w.Params().Layout == simbot.LayoutXDrive {
		b.WithXDriveMotors(m[0], m[1], m[2], m[3])
	} else {
		b.WithMotors(m[0], m[1])
		if wheel := w.TrackingWheel(); wheel != nil {
			b.WithTrackingSensors(device.NewIntegratedEncoder(m[0]), device.NewIntegratedEncoder(m[1]), wheel)
		}
	}

	if e.cfg.MaxVelocity > 0 {
		b.WithMaxVelocity(e.cfg.MaxVelocity)
	}
	if g := e.cfg.Gains; g != nil {
		if g.Angle != nil {
			b.WithGains(g.Distance, g.Turn, *g.Angle)
		} else {
			b.WithGains(g.Distance, g.Turn)
		}
		b.WithDerivativeFilters(derivative, derivative, derivative)
	}
	if o := e.cfg.Odometry; o != nil {
		b.WithOdometry(o.MoveThreshold, o.TurnThreshold)
	}
	return b, nil
}

func (e *Experiment) observe(t time.Duration, truth odometry.Pose) {
	if t-e.lastSample < TracePeriod {
		return
	}
	e.lastSample = t

	s := metrics.Sample{T: t, Truth: truth}
	if e.odom != nil {
		s.Estimate = e.odom.Pose()
		s.HasEstimate = true
	}
	for _, m := range e.world.Motors() {
		s.WheelRPM = append(s.WheelRPM, m.Velocity())
	}
	for _, m := range e.metrics {
		m.Observe(s)
	}
	e.trace = append(e.trace, s)
}

// Run executes the script while the world runs in real time, then closes
// the controller. A stalled motion is recorded and the script continues;
// any other failure ends the script. The result is returned alongside the
// error so partial runs can still be inspected.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.world == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Sim.Timeout)
	defer cancel()

	res := &Result{Plan: e.plan}
	g, gctx := errgroup.WithContext(ctx)
	simCtx, stopSim := context.WithCancel(gctx)
	defer stopSim()

	g.Go(func() error {
		err := e.world.Run(simCtx, e.cfg.Sim.Period)
		if simCtx.Err() != nil && errors.Is(err, simCtx.Err()) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer stopSim()
		return e.runScript(gctx, res)
	})

	err := g.Wait()
	if cerr := e.ctrl.Close(); cerr != nil && err == nil {
		err = cerr
	}

	res.Trace = e.trace
	res.Metrics = metrics.Collect(e.metrics)
	res.Final = e.world.Pose()
	res.Elapsed = e.world.Elapsed()

	if err != nil {
		e.logger.Warnw("experiment ended early", "error", err, "completed", len(res.Steps))
		return res, err
	}
	e.logger.Infow("experiment finished", "pose", res.Final, "elapsed", res.Elapsed)
	return res, nil
}

func (e *Experiment) runScript(ctx context.Context, res *Result) error {
	for i, step := range e.cfg.Script {
		start := e.world.Elapsed()
		err := e.execute(ctx, step)

		r := storage.StepResult{
			Step:    step.String(),
			Outcome: OutcomeSettled,
			Elapsed: (e.world.Elapsed() - start).Seconds(),
			Pose:    e.world.Pose(),
		}
		switch {
		case err == nil:
		case errors.Is(err, chassis.ErrStallTimeout):
			r.Outcome = OutcomeStalled
		case ctx.Err() != nil:
			r.Outcome = OutcomeCanceled
		default:
			r.Outcome = OutcomeFailed
		}
		res.Steps = append(res.Steps, r)
		e.logger.Debugw("step done", "index", i, "step", r.Step, "outcome", r.Outcome, "pose", r.Pose)

		if err != nil && r.Outcome != OutcomeStalled {
			return fmt.Errorf("step %d (%s): %w", i, r.Step, err)
		}
	}
	return nil
}

func (e *Experiment) execute(ctx context.Context, s config.Step) error {
	switch s.Kind() {
	case config.StepDrive:
		return e.ctrl.MoveDistance(ctx, *s.Drive)
	case config.StepTurn:
		return e.ctrl.TurnAngle(ctx, *s.Turn)
	case config.StepPoint:
		return e.odom.DriveToPoint(ctx, s.Point[0], s.Point[1], s.Backwards)
	case config.StepHeading:
		return e.odom.TurnToAngle(ctx, *s.Heading)
	default:
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, s)
	}
}

// World returns the simulated robot for adding observers.
func (e *Experiment) World() *simbot.World {
	return e.world
}

// Controller returns the chassis controller built by Setup.
func (e *Experiment) Controller() chassis.ChassisController {
	return e.ctrl
}

func (e *Experiment) Plan() chassis.Plan {
	return e.plan
}
