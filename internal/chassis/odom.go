package chassis

import (
	"context"
	"math"
	"sync"

	"github.com/edaniels/golog"

	"github.com/san-kum/chassisctl/internal/odometry"
)

// OdomController adds pose tracking to a ChassisController. The estimator's
// loop runs on its own goroutine from construction until Close.
type OdomController struct {
	ChassisController

	odom          odometry.Estimator
	moveThreshold float64
	turnThreshold float64
	logger        golog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewOdomController wraps base and starts the odometry goroutine. The
// estimator must read the same model as base.
func NewOdomController(
	base ChassisController,
	odom odometry.Estimator,
	moveThreshold, turnThreshold float64,
	logger golog.Logger,
) *OdomController {
	ctx, cancel := context.WithCancel(context.Background())
	c := &OdomController{
		ChassisController: base,
		odom:              odom,
		moveThreshold:     math.Abs(moveThreshold),
		turnThreshold:     math.Abs(turnThreshold),
		logger:            logger,
		cancel:            cancel,
	}

	c.wg.Add(1)
	go odom.Loop(ctx, &c.wg)
	return c
}

func (c *OdomController) Pose() odometry.Pose          { return c.odom.Pose() }
func (c *OdomController) SetPose(p odometry.Pose)      { c.odom.SetPose(p) }
func (c *OdomController) Odometry() odometry.Estimator { return c.odom }
func (c *OdomController) MoveThreshold() float64       { return c.moveThreshold }
func (c *OdomController) TurnThreshold() float64       { return c.turnThreshold }

func (c *OdomController) TurnToAngle(ctx context.Context, degrees float64) error {
	return c.turn(ctx, odometry.WrapDegrees(degrees-c.Pose().Theta))
}

func (c *OdomController) TurnToPoint(ctx context.Context, x, y float64) error {
	return c.turn(ctx, c.Pose().AngleTo(x, y))
}

func (c *OdomController) turn(ctx context.Context, degrees float64) error {
	if math.Abs(degrees) < c.turnThreshold {
		return nil
	}
	return c.TurnAngle(ctx, degrees)
}

func (c *OdomController) DriveToPoint(ctx context.Context, x, y float64, backwards bool) error {
	angle := c.Pose().AngleTo(x, y)
	if backwards {
		angle = odometry.WrapDegrees(angle + 180)
	}
	if err := c.turn(ctx, angle); err != nil {
		return err
	}

	// Measure after the turn; turning in place is never perfectly in place.
	distance := c.Pose().DistanceTo(x, y)
	if distance < c.moveThreshold {
		return nil
	}
	if backwards {
		distance = -distance
	}
	c.logger.Debugw("drive to point", "x", x, "y", y, "distance", distance, "pose", c.Pose())
	return c.MoveDistance(ctx, distance)
}

func (c *OdomController) DriveToPose(ctx context.Context, p odometry.Pose) error {
	if err := c.DriveToPoint(ctx, p.X, p.Y, false); err != nil {
		return err
	}
	return c.TurnToAngle(ctx, p.Theta)
}

// Close closes the wrapped controller, then stops and joins odometry.
func (c *OdomController) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ChassisController.Close()
		c.cancel()
		c.wg.Wait()
	})
	return err
}

var _ OdomChassisController = (*OdomController)(nil)
