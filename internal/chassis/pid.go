package chassis

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"

	"github.com/san-kum/chassisctl/internal/control"
	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/kinematics"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// PIDController runs distance, angle and turn PID loops on a background
// goroutine. Distance motions step the distance loop on the mean encoder
// travel and the angle loop on half the encoder difference, holding the
// heading; turns step the turn loop on half the encoder difference.
//
// Targets are set relative to the encoder readings when the loop picks up a
// motion. The encoders are never reset, so odometry reading the same sensors
// is unaffected.
type PIDController struct {
	model       kinematics.Model
	distancePID *control.PIDController
	anglePID    *control.PIDController
	turnPID     *control.PIDController
	pair        device.GearsetRatioPair
	scales      kinematics.ChassisScales
	logger      golog.Logger

	rate         *timeutil.Rate
	stallTimer   *timeutil.Timer
	period       time.Duration
	stallTimeout time.Duration
	readFailures int

	// stepMu serialises loop iterations with Stop and DriveVector so that a
	// halted motion is never driven again by an in-flight iteration.
	stepMu sync.Mutex

	mu      sync.Mutex
	pending *move
	last    *move
	closed  bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPIDController creates the controller and starts its control goroutine.
func NewPIDController(
	model kinematics.Model,
	distance, angle, turn *control.PIDController,
	pair device.GearsetRatioPair,
	scales kinematics.ChassisScales,
	tu timeutil.TimeUtil,
	stallTimeout time.Duration,
	logger golog.Logger,
) *PIDController {
	if stallTimeout <= 0 {
		stallTimeout = DefaultStallTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &PIDController{
		model:        model,
		distancePID:  distance,
		anglePID:     angle,
		turnPID:      turn,
		pair:         pair,
		scales:       scales,
		logger:       logger,
		rate:         tu.Rate,
		stallTimer:   tu.Timer,
		period:       DefaultLoopPeriod,
		stallTimeout: stallTimeout,
		cancel:       cancel,
	}

	c.wg.Add(1)
	go c.loop(ctx)
	return c
}

func (c *PIDController) MoveDistance(ctx context.Context, meters float64) error {
	if err := c.MoveDistanceAsync(meters); err != nil {
		return err
	}
	return c.WaitUntilSettled(ctx)
}

func (c *PIDController) MoveDistanceAsync(meters float64) error {
	c.logger.Debugw("move distance", "meters", meters)
	return c.submit(newMove(moveDistance, meters*c.scales.Straight))
}

func (c *PIDController) TurnAngle(ctx context.Context, degrees float64) error {
	if err := c.TurnAngleAsync(degrees); err != nil {
		return err
	}
	return c.WaitUntilSettled(ctx)
}

func (c *PIDController) TurnAngleAsync(degrees float64) error {
	c.logger.Debugw("turn angle", "degrees", degrees)
	return c.submit(newMove(moveAngle, degrees*c.scales.Turn))
}

func (c *PIDController) submit(m *move) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		m.finish(ErrClosed)
		return ErrClosed
	}
	if c.last != nil {
		c.last.finish(ErrCanceled)
	}
	c.pending = m
	c.last = m
	return nil
}

// cancelCurrent finishes the latest motion with err. It reports false once
// the controller is closed.
func (c *PIDController) cancelCurrent(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.last != nil {
		c.last.finish(err)
	}
	c.pending = nil
	return true
}

func (c *PIDController) DriveVector(forward, yaw float64) error {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()
	if !c.cancelCurrent(ErrCanceled) {
		return ErrClosed
	}
	return c.model.DriveVector(forward, yaw)
}

func (c *PIDController) WaitUntilSettled(ctx context.Context) error {
	c.mu.Lock()
	m := c.last
	c.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.wait(ctx)
}

func (c *PIDController) Stop() error {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()
	if !c.cancelCurrent(ErrCanceled) {
		return ErrClosed
	}
	return c.model.Stop()
}

// Close cancels the current motion, stops the control goroutine and waits for
// it. The goroutine halts the motors on its way out.
func (c *PIDController) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.last != nil {
			c.last.finish(ErrClosed)
		}
		c.pending = nil
		c.mu.Unlock()

		c.cancel()
		c.wg.Wait()
		c.logger.Debugw("pid chassis controller closed")
	})
	return nil
}

func (c *PIDController) Model() kinematics.Model          { return c.model }
func (c *PIDController) Scales() kinematics.ChassisScales { return c.scales }
func (c *PIDController) Gearset() device.GearsetRatioPair { return c.pair }
func (c *PIDController) SetMaxVelocity(rpm float64)       { c.model.SetMaxVelocity(rpm) }
func (c *PIDController) MaxVelocity() float64             { return c.model.MaxVelocity() }

func (c *PIDController) takePending() *move {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.pending
	c.pending = nil
	return m
}

func (c *PIDController) loop(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		if err := c.model.Stop(); err != nil {
			c.logger.Warnw("final stop failed", "error", err)
		}
	}()

	var (
		active  *move
		started bool
	)
	for {
		c.stepMu.Lock()
		if m := c.takePending(); m != nil {
			active, started = m, false
			c.stallTimer.PlaceMark()
		}
		if active != nil && active.finished() {
			active = nil
		}
		if active != nil {
			active, started = c.iterate(active, started)
		}
		c.stepMu.Unlock()

		if err := c.rate.Delay(ctx, c.period); err != nil {
			return
		}
	}
}

// iterate advances the active motion by one step. It returns nil once the
// motion is finished.
func (c *PIDController) iterate(m *move, started bool) (*move, bool) {
	vals, err := c.model.SensorVals()
	if err != nil {
		c.readFailures++
		if c.readFailures == failureLogThreshold {
			c.logger.Warnw("control loop sensor reads failing", "consecutive", c.readFailures, "error", err)
		} else {
			c.logger.Debugw("control loop sensor read failed", "error", err)
		}
		return c.checkStall(m), started
	}
	if c.readFailures >= failureLogThreshold {
		c.logger.Infow("control loop sensor reads recovered", "failed", c.readFailures)
	}
	c.readFailures = 0
	left, right := vals[0], vals[1]

	if !started {
		c.distancePID.Reset()
		c.anglePID.Reset()
		c.turnPID.Reset()
		switch m.kind {
		case moveDistance:
			c.distancePID.SetTarget((left+right)/2 + m.target)
			c.anglePID.SetTarget((left - right) / 2)
		case moveAngle:
			c.turnPID.SetTarget((left-right)/2 + m.target)
		}
		started = true
	}

	var settled bool
	switch m.kind {
	case moveDistance:
		distance := c.distancePID.Step((left + right) / 2)
		angle := c.anglePID.Step((left - right) / 2)
		if err := c.model.DriveVector(distance, angle); err != nil {
			c.logger.Warnw("drive command failed", "error", err)
		}
		settled = c.distancePID.IsSettled() && c.anglePID.IsSettled()
	case moveAngle:
		if err := c.model.Rotate(c.turnPID.Step((left - right) / 2)); err != nil {
			c.logger.Warnw("rotate command failed", "error", err)
		}
		settled = c.turnPID.IsSettled()
	}

	if settled {
		c.halt()
		c.logger.Debugw("motion settled", "kind", m.kind, "elapsed", c.stallTimer.DtFromMark())
		m.finish(nil)
		return nil, false
	}
	return c.checkStall(m), started
}

func (c *PIDController) checkStall(m *move) *move {
	if c.stallTimer.DtFromMark() < c.stallTimeout {
		return m
	}
	c.halt()
	c.logger.Warnw("motion stalled",
		"kind", m.kind,
		"target", m.target,
		"distance_error", c.distancePID.Error(),
		"turn_error", c.turnPID.Error(),
		"timeout", c.stallTimeout,
	)
	m.finish(ErrStallTimeout)
	return nil
}

func (c *PIDController) halt() {
	if err := c.model.Stop(); err != nil {
		c.logger.Warnw("stop failed", "error", err)
	}
}

var _ ChassisController = (*PIDController)(nil)
