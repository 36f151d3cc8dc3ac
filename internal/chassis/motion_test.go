package chassis_test

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/edaniels/golog"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/chassisctl/internal/chassis"
	"github.com/san-kum/chassisctl/internal/control"
	"github.com/san-kum/chassisctl/internal/kinematics"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

var (
	testDimensions = kinematics.Dimensions{WheelDiameter: 0.1, WheelTrack: 0.3}
	testSettle     = timeutil.SettleParams{
		AtTargetError:      10,
		AtTargetDerivative: 5,
		AtTargetTime:       50 * time.Millisecond,
	}
)

// newBuilder returns a builder on plant motors. The plant gain and PID gain
// give roughly a tenth of the remaining error per control period.
func newBuilder(n int, onboard bool) (*chassis.Builder, *drivetrain) {
	d := newDrivetrain(n, 10, onboard)
	b := chassis.NewBuilder(golog.NewTestLogger(GinkgoTB())).
		WithDimensions(testDimensions).
		WithTimeUtilFactory(timeutil.Factory{Clock: timeutil.SystemClock(), Settle: testSettle}).
		WithStallTimeout(3 * time.Second)
	if n == 4 {
		b.WithXDriveMotors(d.motors[0], d.motors[1], d.motors[2], d.motors[3])
	} else {
		b.WithMotors(d.motors[0], d.motors[1])
	}
	return b, d
}

func motionContext() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	DeferCleanup(cancel)
	return ctx
}

func encoderDistance(c chassis.ChassisController) float64 {
	vals, err := c.Model().SensorVals()
	Expect(err).NotTo(HaveOccurred())
	return (vals[0] + vals[1]) / 2 / c.Scales().Straight
}

var _ = Describe("PID chassis controller", func() {
	var (
		ctrl chassis.ChassisController
		d    *drivetrain
	)

	BeforeEach(func() {
		var b *chassis.Builder
		b, d = newBuilder(2, false)
		var err error
		ctrl, err = b.WithGains(control.Gains{Kp: 0.005}, control.Gains{Kp: 0.005}).Build()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctrl.Close)
	})

	It("settles on a distance target", func() {
		Expect(ctrl.MoveDistance(motionContext(), 0.1)).To(Succeed())
		Expect(encoderDistance(ctrl)).To(BeNumerically("~", 0.1, 0.01))
	})

	It("reverses with a negative distance", func() {
		Expect(ctrl.MoveDistance(motionContext(), -0.1)).To(Succeed())
		Expect(encoderDistance(ctrl)).To(BeNumerically("~", -0.1, 0.01))
	})

	It("settles on a turn", func() {
		Expect(ctrl.TurnAngle(motionContext(), 45)).To(Succeed())
		vals, err := ctrl.Model().SensorVals()
		Expect(err).NotTo(HaveOccurred())
		degrees := (vals[0] - vals[1]) / 2 / ctrl.Scales().Turn
		Expect(degrees).To(BeNumerically("~", 45, 2))
	})

	It("bails out of a stalled motion", func() {
		d.freeze()
		start := time.Now()
		err := ctrl.MoveDistance(motionContext(), 0.5)
		Expect(errors.Is(err, chassis.ErrStallTimeout)).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically(">=", 3*time.Second))
	})

	It("reports a stopped motion as canceled", func() {
		d.freeze()
		Expect(ctrl.MoveDistanceAsync(1)).To(Succeed())
		Expect(ctrl.Stop()).To(Succeed())
		Expect(errors.Is(ctrl.WaitUntilSettled(motionContext()), chassis.ErrCanceled)).To(BeTrue())
	})

	It("cancels the current motion on a new command", func() {
		d.freeze()
		Expect(ctrl.MoveDistanceAsync(1)).To(Succeed())
		done := make(chan error, 1)
		go func() { done <- ctrl.WaitUntilSettled(context.Background()) }()
		// Let the waiter pick up the first motion.
		time.Sleep(20 * time.Millisecond)

		Expect(ctrl.TurnAngleAsync(90)).To(Succeed())
		Eventually(done).Should(Receive(MatchError(chassis.ErrCanceled)))
	})

	It("returns the context error when the caller gives up", func() {
		d.freeze()
		Expect(ctrl.MoveDistanceAsync(1)).To(Succeed())
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		Expect(ctrl.WaitUntilSettled(ctx)).To(MatchError(context.DeadlineExceeded))
	})

	It("joins its loop on Close and issues no further commands", func() {
		d.freeze()
		Expect(ctrl.MoveDistanceAsync(1)).To(Succeed())
		done := make(chan error, 1)
		go func() { done <- ctrl.WaitUntilSettled(context.Background()) }()
		Eventually(d.commands).Should(BeNumerically(">", 4))

		Expect(ctrl.Close()).To(Succeed())
		Eventually(done).Should(Receive(MatchError(chassis.ErrClosed)))

		after := d.commands()
		Consistently(d.commands, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(after))
		Expect(ctrl.MoveDistanceAsync(1)).To(MatchError(chassis.ErrClosed))
		Expect(ctrl.Stop()).To(MatchError(chassis.ErrClosed))
		Expect(ctrl.DriveVector(1, 0)).To(MatchError(chassis.ErrClosed))
		Expect(d.commands()).To(Equal(after))
		Expect(d.motors[0].velocity).To(BeZero())
	})
})

var _ = Describe("PID control loop sensor failures", func() {
	It("warns once on persistent read failures and notes the recovery", func() {
		core, logs := observer.New(zapcore.DebugLevel)
		b, d := newBuilder(2, false)
		ctrl, err := b.WithLogger(zap.New(core).Sugar()).
			WithGains(control.Gains{Kp: 0.005}, control.Gains{Kp: 0.005}).
			Build()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctrl.Close)

		d.setFailing(true)
		Expect(ctrl.MoveDistanceAsync(0.1)).To(Succeed())
		failing := func() int { return logs.FilterMessage("control loop sensor reads failing").Len() }
		Eventually(failing).Should(Equal(1))
		Consistently(failing, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(1))

		d.setFailing(false)
		Eventually(func() int { return logs.FilterMessage("control loop sensor reads recovered").Len() }).Should(Equal(1))
		Expect(ctrl.WaitUntilSettled(motionContext())).To(Succeed())
	})
})

var _ = Describe("Integrated chassis controller", func() {
	var (
		ctrl chassis.ChassisController
		d    *drivetrain
	)

	BeforeEach(func() {
		var b *chassis.Builder
		b, d = newBuilder(2, true)
		var err error
		ctrl, err = b.Build()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctrl.Close)
	})

	It("hands targets to the onboard controllers", func() {
		Expect(ctrl.MoveDistance(motionContext(), 0.2)).To(Succeed())
		Expect(encoderDistance(ctrl)).To(BeNumerically("~", 0.2, 1e-9))

		// Targets are relative to a software tare, so the turn is measured
		// from where the drive left the motors.
		leftStart, _ := d.motors[0].Position()
		rightStart, _ := d.motors[1].Position()

		Expect(ctrl.TurnAngle(motionContext(), -30)).To(Succeed())
		left, _ := d.motors[0].Position()
		right, _ := d.motors[1].Position()
		Expect(left - leftStart).To(BeNumerically("~", -30*ctrl.Scales().Turn, 1e-6))
		Expect(right - rightStart).To(BeNumerically("~", 30*ctrl.Scales().Turn, 1e-6))
	})

	It("bails out when the motors never arrive", func() {
		d.freeze()
		err := ctrl.MoveDistance(motionContext(), 0.2)
		Expect(errors.Is(err, chassis.ErrStallTimeout)).To(BeTrue())
	})

	It("releases waiters on Close", func() {
		d.freeze()
		Expect(ctrl.MoveDistanceAsync(0.2)).To(Succeed())
		done := make(chan error, 1)
		go func() { done <- ctrl.WaitUntilSettled(context.Background()) }()

		Expect(ctrl.Close()).To(Succeed())
		Eventually(done).Should(Receive(MatchError(chassis.ErrClosed)))
		Expect(ctrl.MoveDistanceAsync(0.2)).To(MatchError(chassis.ErrClosed))
	})

	It("applies max velocity to the model", func() {
		ctrl.SetMaxVelocity(120)
		Expect(ctrl.MaxVelocity()).To(Equal(120.0))
		Expect(ctrl.DriveVector(1, 0)).To(Succeed())
		Expect(d.motors[0].velocity).To(Equal(120.0))
	})
})

var _ = Describe("X-drive integrated controller", func() {
	It("drives each side as a motor group", func() {
		b, d := newBuilder(4, true)
		ctrl, err := b.Build()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctrl.Close)

		Expect(ctrl.MoveDistance(motionContext(), 0.1)).To(Succeed())
		want := 0.1 * ctrl.Scales().Straight
		for _, m := range d.motors {
			pos, _ := m.Position()
			Expect(pos).To(BeNumerically("~", want, 1e-6))
		}
	})
})

var _ = Describe("Odometry chassis controller", func() {
	var ctrl chassis.OdomChassisController

	BeforeEach(func() {
		b, _ := newBuilder(2, false)
		var err error
		ctrl, err = b.WithGains(control.Gains{Kp: 0.005}, control.Gains{Kp: 0.005}).
			WithOdometry(0.01, 2).
			BuildOdometry()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctrl.Close)
	})

	It("tracks pose while moving", func() {
		Expect(ctrl.MoveDistance(motionContext(), 0.2)).To(Succeed())
		Eventually(func() float64 { return ctrl.Pose().X }).Should(BeNumerically("~", 0.2, 0.01))
		Expect(ctrl.Pose().Y).To(BeNumerically("~", 0, 0.01))
	})

	It("drives to a point and faces a heading", func() {
		ctx := motionContext()
		Expect(ctrl.DriveToPoint(ctx, 0.3, 0.3, false)).To(Succeed())
		Eventually(func() float64 { return ctrl.Pose().DistanceTo(0.3, 0.3) }).Should(BeNumerically("<", 0.03))

		Expect(ctrl.TurnToAngle(ctx, 0)).To(Succeed())
		Eventually(func() float64 { return ctrl.Pose().Theta }).Should(BeNumerically("~", 0, 3))
	})

	It("skips motions under the thresholds", func() {
		ctrl.SetPose(ctrl.Pose())
		Expect(ctrl.TurnToAngle(motionContext(), ctrl.Pose().Theta+1)).To(Succeed())
		Expect(ctrl.DriveToPoint(motionContext(), ctrl.Pose().X+0.005, ctrl.Pose().Y, false)).To(Succeed())
		Expect(math.Abs(ctrl.Pose().X)).To(BeNumerically("<", 0.01))
	})

	It("drives backwards to a point behind", func() {
		Expect(ctrl.DriveToPoint(motionContext(), -0.2, 0, true)).To(Succeed())
		Eventually(func() float64 { return ctrl.Pose().X }).Should(BeNumerically("~", -0.2, 0.02))
		Expect(math.Abs(ctrl.Pose().Theta)).To(BeNumerically("<", 2))
	})

	It("stops odometry on Close", func() {
		Expect(ctrl.Close()).To(Succeed())
		Expect(ctrl.Odometry().State().String()).To(Equal("idle"))
	})
})
