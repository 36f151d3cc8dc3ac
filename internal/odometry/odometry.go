// Package odometry estimates chassis pose by dead reckoning from a skid-steer
// model's encoders.
//
// The estimator publishes each pose as an immutable snapshot, so Pose may be
// called from any goroutine without locking and never observes a mix of two
// iterations.
package odometry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/zap"

	"github.com/san-kum/chassisctl/internal/kinematics"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

var ErrUnsupportedModel = errors.New("odometry: model does not support odometry")

// DefaultPeriod is the odometry sample period.
const DefaultPeriod = 10 * time.Millisecond

// failureLogThreshold is the number of consecutive failed reads after which a
// warning is logged.
const failureLogThreshold = 10

// Mode selects the update math.
type Mode int

const (
	// TwoEncoder derives heading and travel from the left and right wheels.
	TwoEncoder Mode = iota
	// ThreeEncoder also integrates lateral travel from a middle tracking
	// wheel.
	ThreeEncoder
)

func (m Mode) String() string {
	if m == ThreeEncoder {
		return "three-encoder"
	}
	return "two-encoder"
}

// State is the estimator lifecycle.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Estimator is a pose source driven by a background loop. The model it
// reports must be the instance it reads sensors from.
type Estimator interface {
	Loop(ctx context.Context, wg *sync.WaitGroup)
	Step()
	Pose() Pose
	SetPose(p Pose)
	State() State
	Model() kinematics.Model
	Scales() kinematics.ChassisScales
}

// Deltas are encoder changes since the previous sample, in ticks.
type Deltas struct {
	Left, Right, Middle float64
}

// Update advances p by one sample. The displacement is treated as a circular
// arc and applied along its chord at the mid-step heading. In TwoEncoder mode
// the middle delta is ignored.
func Update(p Pose, d Deltas, s kinematics.ChassisScales, mode Mode) Pose {
	dl := d.Left / s.Straight
	dr := d.Right / s.Straight
	dTheta := (dl - dr) / s.WheelTrack
	dCenter := (dl + dr) / 2

	dLateral := 0.0
	if mode == ThreeEncoder && s.Middle != 0 {
		// Rotation alone moves an offset tracking wheel sideways.
		dLateral = d.Middle/s.Middle - dTheta*s.MiddleWheelDistance
	}

	chord := 1.0
	if dTheta != 0 {
		chord = 2 * math.Sin(dTheta/2) / dTheta
	}
	forward := chord * dCenter
	lateral := chord * dLateral

	heading := p.Theta*math.Pi/180 + dTheta/2
	sin, cos := math.Sincos(heading)
	return Pose{
		X:     p.X + forward*cos - lateral*sin,
		Y:     p.Y + forward*sin + lateral*cos,
		Theta: p.Theta + dTheta*180/math.Pi,
	}
}

// Odometry is the encoder-based Estimator.
type Odometry struct {
	model  kinematics.Model
	scales kinematics.ChassisScales
	mode   Mode
	rate   *timeutil.Rate
	period time.Duration
	logger golog.Logger

	pose  atomic.Pointer[Pose]
	state atomic.Int32

	// Owned by the goroutine calling Step.
	last     []float64
	primed   bool
	failures int
}

// New creates an idle estimator. The mode follows the model: a three-encoder
// skid-steer gives ThreeEncoder, a two-encoder one TwoEncoder. X-drive is
// rejected.
func New(model kinematics.Model, scales kinematics.ChassisScales, tu timeutil.TimeUtil, logger golog.Logger) (*Odometry, error) {
	var mode Mode
	switch model.Kind() {
	case kinematics.KindSkidSteer:
		mode = TwoEncoder
	case kinematics.KindThreeEncoderSkidSteer:
		mode = ThreeEncoder
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedModel, model.Kind())
	}
	if err := scales.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	o := &Odometry{
		model:  model,
		scales: scales,
		mode:   mode,
		rate:   tu.Rate,
		period: DefaultPeriod,
		logger: logger,
	}
	o.pose.Store(&Pose{})
	return o, nil
}

// SetPeriod changes the sample period. Call before Loop.
func (o *Odometry) SetPeriod(d time.Duration) {
	if d > 0 {
		o.period = d
	}
}

func (o *Odometry) Mode() Mode                       { return o.mode }
func (o *Odometry) Model() kinematics.Model          { return o.model }
func (o *Odometry) Scales() kinematics.ChassisScales { return o.scales }
func (o *Odometry) State() State                     { return State(o.state.Load()) }

func (o *Odometry) Pose() Pose {
	return *o.pose.Load()
}

// SetPose replaces the estimate. Encoder history is kept, so motion after the
// call is integrated from p.
func (o *Odometry) SetPose(p Pose) {
	o.pose.Store(&p)
}

// Step samples the encoders once and integrates the change. A failed read
// leaves the pose unchanged; the next good read covers the missed motion.
func (o *Odometry) Step() {
	vals, err := o.model.SensorVals()
	if err != nil {
		o.failures++
		if o.failures == failureLogThreshold {
			o.logger.Warnw("odometry sensor reads failing", "consecutive", o.failures, "error", err)
		}
		return
	}
	if o.failures >= failureLogThreshold {
		o.logger.Infow("odometry sensor reads recovered", "failed", o.failures)
	}
	o.failures = 0

	if !o.primed {
		o.last = vals
		o.primed = true
		return
	}

	d := Deltas{Left: vals[0] - o.last[0], Right: vals[1] - o.last[1]}
	if len(vals) > 2 && len(o.last) > 2 {
		d.Middle = vals[2] - o.last[2]
	}
	o.last = vals

	for {
		cur := o.pose.Load()
		next := Update(*cur, d, o.scales, o.mode)
		if o.pose.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Loop runs Step every period until ctx is done. The caller must have added
// one to wg.
func (o *Odometry) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	if !o.state.CompareAndSwap(int32(Idle), int32(Running)) {
		o.logger.Warnw("odometry loop already running")
		return
	}
	defer o.state.Store(int32(Idle))

	o.logger.Debugw("odometry loop started", "mode", o.mode, "period", o.period)
	for {
		o.Step()
		if err := o.rate.Delay(ctx, o.period); err != nil {
			o.logger.Debugw("odometry loop stopped", "pose", o.Pose())
			return
		}
	}
}

var _ Estimator = (*Odometry)(nil)
