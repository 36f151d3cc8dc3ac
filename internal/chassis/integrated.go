package chassis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edaniels/golog"

	"github.com/san-kum/chassisctl/internal/control"
	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/kinematics"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// IntegratedController sends each motion straight to the motors' onboard
// position controllers, one per side. It has no goroutine: WaitUntilSettled
// polls the motors in the caller's goroutine.
type IntegratedController struct {
	model  kinematics.Model
	left   *control.IntegratedController
	right  *control.IntegratedController
	pair   device.GearsetRatioPair
	scales kinematics.ChassisScales
	logger golog.Logger

	clock        timeutil.Clock
	stallTimer   *timeutil.Timer
	pollPeriod   time.Duration
	stallTimeout time.Duration

	// mu guards the onboard controllers and the motion state.
	mu     sync.Mutex
	last   *move
	closed bool
}

func NewIntegratedController(
	model kinematics.Model,
	left, right *control.IntegratedController,
	pair device.GearsetRatioPair,
	scales kinematics.ChassisScales,
	tu timeutil.TimeUtil,
	stallTimeout time.Duration,
	logger golog.Logger,
) *IntegratedController {
	if stallTimeout <= 0 {
		stallTimeout = DefaultStallTimeout
	}
	return &IntegratedController{
		model:        model,
		left:         left,
		right:        right,
		pair:         pair,
		scales:       scales,
		logger:       logger,
		clock:        tu.Clock,
		stallTimer:   tu.Timer,
		pollPeriod:   DefaultLoopPeriod,
		stallTimeout: stallTimeout,
	}
}

func (c *IntegratedController) MoveDistance(ctx context.Context, meters float64) error {
	if err := c.MoveDistanceAsync(meters); err != nil {
		return err
	}
	return c.WaitUntilSettled(ctx)
}

func (c *IntegratedController) MoveDistanceAsync(meters float64) error {
	ticks := meters * c.scales.Straight
	c.logger.Debugw("move distance", "meters", meters, "ticks", ticks)
	return c.submit(moveDistance, ticks, ticks)
}

func (c *IntegratedController) TurnAngle(ctx context.Context, degrees float64) error {
	if err := c.TurnAngleAsync(degrees); err != nil {
		return err
	}
	return c.WaitUntilSettled(ctx)
}

func (c *IntegratedController) TurnAngleAsync(degrees float64) error {
	ticks := degrees * c.scales.Turn
	c.logger.Debugw("turn angle", "degrees", degrees, "ticks", ticks)
	return c.submit(moveAngle, ticks, -ticks)
}

func (c *IntegratedController) submit(kind moveKind, left, right float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.last != nil {
		c.last.finish(ErrCanceled)
	}

	if err := errors.Join(c.left.Tare(), c.right.Tare()); err != nil {
		return fmt.Errorf("chassis: tare before %v motion: %w", kind, err)
	}
	c.left.SetTarget(left)
	c.right.SetTarget(right)

	c.last = newMove(kind, left)
	c.stallTimer.PlaceMark()
	return nil
}

func (c *IntegratedController) DriveVector(forward, yaw float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.last != nil {
		c.last.finish(ErrCanceled)
	}
	return c.model.DriveVector(forward, yaw)
}

// WaitUntilSettled polls both sides every poll period until they settle, the
// stall timeout elapses, the motion is canceled or ctx is done.
func (c *IntegratedController) WaitUntilSettled(ctx context.Context) error {
	c.mu.Lock()
	m := c.last
	c.mu.Unlock()
	if m == nil {
		return nil
	}

	for {
		c.poll(m)
		select {
		case <-m.done:
			return m.err
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.pollPeriod):
		}
	}
}

func (c *IntegratedController) poll(m *move) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m != c.last || m.finished() {
		return
	}

	if c.left.IsSettled() && c.right.IsSettled() {
		c.halt()
		m.finish(nil)
		return
	}
	if c.stallTimer.DtFromMark() >= c.stallTimeout {
		c.halt()
		c.logger.Warnw("motion stalled",
			"kind", m.kind,
			"left_error", c.left.Error(),
			"right_error", c.right.Error(),
			"timeout", c.stallTimeout,
		)
		m.finish(ErrStallTimeout)
	}
}

func (c *IntegratedController) halt() {
	if err := c.model.Stop(); err != nil {
		c.logger.Warnw("stop failed", "error", err)
	}
}

func (c *IntegratedController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.last != nil {
		c.last.finish(ErrCanceled)
	}
	return c.model.Stop()
}

// Close halts the motors and releases waiters. Later commands fail with
// ErrClosed.
func (c *IntegratedController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.last != nil {
		c.last.finish(ErrClosed)
	}
	return c.model.Stop()
}

func (c *IntegratedController) Model() kinematics.Model          { return c.model }
func (c *IntegratedController) Scales() kinematics.ChassisScales { return c.scales }
func (c *IntegratedController) Gearset() device.GearsetRatioPair { return c.pair }

func (c *IntegratedController) SetMaxVelocity(rpm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model.SetMaxVelocity(rpm)
	c.left.SetMaxVelocity(rpm)
	c.right.SetMaxVelocity(rpm)
}

func (c *IntegratedController) MaxVelocity() float64 { return c.model.MaxVelocity() }

var _ ChassisController = (*IntegratedController)(nil)
