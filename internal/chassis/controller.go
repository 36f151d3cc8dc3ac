// Package chassis assembles drivetrain kinematics, closed-loop controllers
// and odometry into chassis controllers that execute motion commands.
//
// A [Builder] selects one kinematics layout and one control strategy:
//
//   - PID strategies run a background control goroutine that steps distance,
//     angle and turn PID loops and drives the kinematics model.
//   - Integrated strategies hand position targets to the motors' onboard
//     controllers and poll them for completion.
//
// Either may be wrapped with an odometry goroutine that tracks pose from the
// same kinematics model.
//
// Motion commands take effect on the next control iteration. Each command
// supersedes the previous one, whose waiters receive [ErrCanceled].
// Controllers must be released with Close, which stops the motors, joins the
// background goroutines and releases outstanding waiters with [ErrClosed].
// No motor commands are issued after Close returns.
package chassis

import (
	"context"
	"sync"
	"time"

	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/kinematics"
	"github.com/san-kum/chassisctl/internal/odometry"
)

const (
	// DefaultLoopPeriod is the control loop period.
	DefaultLoopPeriod = 10 * time.Millisecond
	// DefaultStallTimeout bounds how long a motion may take to settle.
	DefaultStallTimeout = 10 * time.Second
)

// failureLogThreshold is the number of consecutive failed sensor reads in a
// control loop after which a warning is logged.
const failureLogThreshold = 10

// ChassisController executes chassis motions. Distances are in meters, angles
// in degrees clockwise. Negative values reverse.
type ChassisController interface {
	// MoveDistance drives straight and waits for the motion to finish.
	MoveDistance(ctx context.Context, meters float64) error
	MoveDistanceAsync(meters float64) error
	// TurnAngle turns in place and waits for the motion to finish.
	TurnAngle(ctx context.Context, degrees float64) error
	TurnAngleAsync(degrees float64) error
	// DriveVector cancels the current motion and drives open loop with
	// normalized forward and yaw speeds.
	DriveVector(forward, yaw float64) error
	// WaitUntilSettled blocks until the latest motion finishes and returns
	// its outcome: nil, ErrStallTimeout, ErrCanceled, ErrClosed or the
	// context error.
	WaitUntilSettled(ctx context.Context) error
	// Stop cancels the current motion and halts the motors.
	Stop() error
	// Close stops the controller permanently and joins its goroutines.
	Close() error

	Model() kinematics.Model
	Scales() kinematics.ChassisScales
	Gearset() device.GearsetRatioPair
	SetMaxVelocity(rpm float64)
	MaxVelocity() float64
}

// OdomChassisController is a ChassisController that tracks pose and can
// drive to field positions.
type OdomChassisController interface {
	ChassisController

	Pose() odometry.Pose
	SetPose(p odometry.Pose)
	// DriveToPoint turns toward (x, y) and drives to it. With backwards the
	// chassis faces away and reverses in.
	DriveToPoint(ctx context.Context, x, y float64, backwards bool) error
	TurnToAngle(ctx context.Context, degrees float64) error
	TurnToPoint(ctx context.Context, x, y float64) error
	DriveToPose(ctx context.Context, p odometry.Pose) error
	// MoveThreshold is the smallest distance, in meters, a point-directed
	// motion will drive.
	MoveThreshold() float64
	// TurnThreshold is the smallest angle, in degrees, a point-directed
	// motion will turn.
	TurnThreshold() float64
	Odometry() odometry.Estimator
}

type moveKind int

const (
	moveDistance moveKind = iota
	moveAngle
)

func (k moveKind) String() string {
	if k == moveAngle {
		return "angle"
	}
	return "distance"
}

// move is one motion command. target is in encoder ticks. done is closed
// exactly once, after err is set.
type move struct {
	kind   moveKind
	target float64
	done   chan struct{}
	once   sync.Once
	err    error
}

func newMove(kind moveKind, target float64) *move {
	return &move{kind: kind, target: target, done: make(chan struct{})}
}

func (m *move) finish(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.done)
	})
}

func (m *move) finished() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *move) wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
