package chassis_test

import (
	"errors"
	"time"

	"github.com/edaniels/golog"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/chassisctl/internal/chassis"
	"github.com/san-kum/chassisctl/internal/control"
	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/filter"
	"github.com/san-kum/chassisctl/internal/kinematics"
	"github.com/san-kum/chassisctl/internal/odometry"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

var gains = control.Gains{Kp: 0.005}

type layoutCase struct {
	layout   chassis.Layout
	odometry bool
	gains    bool
}

func configure(b *chassis.Builder, c layoutCase) (*chassis.Builder, *drivetrain) {
	var d *drivetrain
	if c.layout == chassis.LayoutXDrive {
		d = newDrivetrain(4, 10, true)
		b.WithXDriveMotors(d.motors[0], d.motors[1], d.motors[2], d.motors[3])
	} else {
		d = newDrivetrain(2, 10, true)
		b.WithMotors(d.motors[0], d.motors[1])
	}
	if c.odometry {
		b.WithOdometry(0.01, 1)
	}
	if c.gains {
		b.WithGains(gains, gains)
	}
	return b, d
}

var _ = Describe("Builder", func() {
	var (
		builder *chassis.Builder
		logs    *observer.ObservedLogs
	)

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)
		builder = chassis.NewBuilder(zap.New(core).Sugar())
	})

	DescribeTable("selects kinematics and strategy",
		func(c layoutCase, kind kinematics.Kind, strategy chassis.Strategy) {
			b, _ := configure(builder, c)
			plan, err := b.Plan()
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Layout).To(Equal(c.layout))
			Expect(plan.Kinematics).To(Equal(kind))
			Expect(plan.Strategy).To(Equal(strategy))
			Expect(plan.Strategy.ControlLoop()).To(Equal(c.gains))
			Expect(plan.Strategy.OdometryLoop()).To(Equal(c.odometry))
		},
		Entry("skid-steer, odometry and gains",
			layoutCase{chassis.LayoutSkidSteer, true, true}, kinematics.KindSkidSteer, chassis.StrategyOdomPID),
		Entry("skid-steer, odometry only",
			layoutCase{chassis.LayoutSkidSteer, true, false}, kinematics.KindSkidSteer, chassis.StrategyOdomIntegrated),
		Entry("skid-steer, gains only",
			layoutCase{chassis.LayoutSkidSteer, false, true}, kinematics.KindSkidSteer, chassis.StrategyPID),
		Entry("skid-steer, neither",
			layoutCase{chassis.LayoutSkidSteer, false, false}, kinematics.KindSkidSteer, chassis.StrategyIntegrated),
		Entry("x-drive, gains only",
			layoutCase{chassis.LayoutXDrive, false, true}, kinematics.KindXDrive, chassis.StrategyPID),
		Entry("x-drive, neither",
			layoutCase{chassis.LayoutXDrive, false, false}, kinematics.KindXDrive, chassis.StrategyIntegrated),
	)

	DescribeTable("rejects odometry on x-drive",
		func(withGains bool) {
			b, d := configure(builder, layoutCase{chassis.LayoutXDrive, true, withGains})
			c, err := b.Build()
			Expect(c).To(BeNil())
			Expect(errors.Is(err, chassis.ErrConfiguration)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("skid-steer"))
			Expect(d.commands()).To(BeZero())
		},
		Entry("with gains", true),
		Entry("without gains", false),
	)

	DescribeTable("builds the planned controller",
		func(c layoutCase, check func(chassis.ChassisController)) {
			b, _ := configure(builder, c)
			ctrl, err := b.Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(ctrl).NotTo(BeNil())
			DeferCleanup(ctrl.Close)
			check(ctrl)
		},
		Entry("odom pid", layoutCase{chassis.LayoutSkidSteer, true, true}, func(c chassis.ChassisController) {
			o, ok := c.(*chassis.OdomController)
			Expect(ok).To(BeTrue())
			Expect(o.ChassisController).To(BeAssignableToTypeOf(&chassis.PIDController{}))
			Expect(o.Odometry().Model()).To(BeIdenticalTo(c.Model()))
			Eventually(o.Odometry().State).Should(Equal(odometry.Running))
		}),
		Entry("odom integrated", layoutCase{chassis.LayoutSkidSteer, true, false}, func(c chassis.ChassisController) {
			o, ok := c.(*chassis.OdomController)
			Expect(ok).To(BeTrue())
			Expect(o.ChassisController).To(BeAssignableToTypeOf(&chassis.IntegratedController{}))
			Expect(o.Odometry().Model()).To(BeIdenticalTo(c.Model()))
		}),
		Entry("pid", layoutCase{chassis.LayoutSkidSteer, false, true}, func(c chassis.ChassisController) {
			Expect(c).To(BeAssignableToTypeOf(&chassis.PIDController{}))
		}),
		Entry("integrated", layoutCase{chassis.LayoutSkidSteer, false, false}, func(c chassis.ChassisController) {
			Expect(c).To(BeAssignableToTypeOf(&chassis.IntegratedController{}))
		}),
		Entry("x-drive pid", layoutCase{chassis.LayoutXDrive, false, true}, func(c chassis.ChassisController) {
			Expect(c).To(BeAssignableToTypeOf(&chassis.PIDController{}))
			Expect(c.Model().Kind()).To(Equal(kinematics.KindXDrive))
		}),
		Entry("x-drive integrated", layoutCase{chassis.LayoutXDrive, false, false}, func(c chassis.ChassisController) {
			Expect(c).To(BeAssignableToTypeOf(&chassis.IntegratedController{}))
			Expect(c.Model().Kind()).To(Equal(kinematics.KindXDrive))
		}),
	)

	It("fails without motors and logs the error", func() {
		c, err := builder.WithGains(gains, gains).WithOdometry(0.01, 1).Build()
		Expect(c).To(BeNil())

		var cfgErr *chassis.ConfigError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(cfgErr.Reason).To(Equal("no motors given"))
		Expect(logs.FilterMessage("chassis build failed").Len()).To(Equal(1))
	})

	It("rejects a nil estimator factory", func() {
		b, _ := configure(builder, layoutCase{chassis.LayoutSkidSteer, false, true})
		_, err := b.WithOdometryFactory(nil, 0.01, 1).Build()
		Expect(errors.Is(err, chassis.ErrConfiguration)).To(BeTrue())
	})

	It("rejects an estimator reading a different model", func() {
		b, _ := configure(builder, layoutCase{chassis.LayoutSkidSteer, false, false})
		other := newDrivetrain(2, 10, true)
		foreign := kinematics.NewSkidSteer(other.motors[0], other.motors[1],
			device.NewIntegratedEncoder(other.motors[0]), device.NewIntegratedEncoder(other.motors[1]), 200, 12000)

		b.WithOdometryFactory(func(_ kinematics.Model, s kinematics.ChassisScales, tu timeutil.TimeUtil, l golog.Logger) (odometry.Estimator, error) {
			return odometry.New(foreign, s, tu, l)
		}, 0.01, 1)
		_, err := b.Build()
		Expect(errors.Is(err, chassis.ErrConfiguration)).To(BeTrue())
	})

	It("uses a custom estimator on the chassis model", func() {
		b, _ := configure(builder, layoutCase{chassis.LayoutSkidSteer, false, false})
		var seen kinematics.Model
		b.WithOdometryFactory(func(m kinematics.Model, s kinematics.ChassisScales, tu timeutil.TimeUtil, l golog.Logger) (odometry.Estimator, error) {
			seen = m
			return odometry.New(m, s, tu, l)
		}, 0.01, 1)

		plan, err := b.Plan()
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Estimator).To(Equal(chassis.EstimatorCustom))

		c, err := b.BuildOdometry()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(c.Close)
		Expect(seen).To(BeIdenticalTo(c.Model()))
	})

	It("selects three-encoder kinematics and odometry with a middle sensor", func() {
		d := newDrivetrain(3, 10, true)
		builder.WithMotors(d.motors[0], d.motors[1]).
			WithTrackingSensors(
				device.NewIntegratedEncoder(d.motors[0]),
				device.NewIntegratedEncoder(d.motors[1]),
				device.NewIntegratedEncoder(d.motors[2]),
			).
			WithOdometry(0.01, 1)

		plan, err := builder.Plan()
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Kinematics).To(Equal(kinematics.KindThreeEncoderSkidSteer))
		Expect(plan.Estimator).To(Equal(chassis.EstimatorThreeEncoder))

		c, err := builder.BuildOdometry()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(c.Close)
		est, ok := c.Odometry().(*odometry.Odometry)
		Expect(ok).To(BeTrue())
		Expect(est.Mode()).To(Equal(odometry.ThreeEncoder))
	})

	It("selects two-encoder odometry without a middle sensor", func() {
		b, _ := configure(builder, layoutCase{chassis.LayoutSkidSteer, true, false})
		plan, err := b.Plan()
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Estimator).To(Equal(chassis.EstimatorTwoEncoder))
	})

	It("derives max velocity from the gearset unless set", func() {
		b, _ := configure(builder, layoutCase{chassis.LayoutSkidSteer, false, false})
		b.WithGearset(device.NewGearsetRatioPair(device.Blue, 1))
		plan, err := b.Plan()
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.MaxVelocity).To(Equal(600.0))

		b.WithMaxVelocity(150).WithGearset(device.NewGearsetRatioPair(device.Red, 1))
		plan, err = b.Plan()
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.MaxVelocity).To(Equal(150.0))
	})

	It("requires odometry for BuildOdometry", func() {
		b, _ := configure(builder, layoutCase{chassis.LayoutSkidSteer, false, true})
		c, err := b.BuildOdometry()
		Expect(c).To(BeNil())
		Expect(errors.Is(err, chassis.ErrConfiguration)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("no odometry information"))
	})

	DescribeTable("rejects nil sensors",
		func(set func(b *chassis.Builder, enc device.RotarySensor)) {
			b, d := configure(builder, layoutCase{chassis.LayoutSkidSteer, true, false})
			set(b, device.NewIntegratedEncoder(d.motors[0]))

			c, err := b.Build()
			Expect(c).To(BeNil())
			var cfgErr *chassis.ConfigError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(cfgErr.Reason).To(Equal("sensors cannot be nil"))
		},
		Entry("both", func(b *chassis.Builder, _ device.RotarySensor) { b.WithSensors(nil, nil) }),
		Entry("right", func(b *chassis.Builder, enc device.RotarySensor) { b.WithSensors(enc, nil) }),
		Entry("tracking left", func(b *chassis.Builder, enc device.RotarySensor) { b.WithTrackingSensors(nil, enc, enc) }),
	)

	It("rejects invalid dimensions", func() {
		b, _ := configure(builder, layoutCase{chassis.LayoutSkidSteer, false, false})
		_, err := b.WithDimensions(kinematics.Dimensions{WheelDiameter: 0, WheelTrack: 0.3}).Build()
		Expect(errors.Is(err, chassis.ErrConfiguration)).To(BeTrue())
	})

	It("gives each loop its own derivative filter", func() {
		made := 0
		avg := func() filter.Filter { made++; return filter.NewAverage(2) }
		b, _ := configure(builder, layoutCase{chassis.LayoutSkidSteer, false, true})
		c, err := b.WithDerivativeFilters(avg, avg, avg).
			WithTimeUtilFactory(timeutil.Factory{Clock: timeutil.SystemClock(), Settle: timeutil.DefaultSettleParams()}).
			WithStallTimeout(time.Second).
			Build()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(c.Close)
		Expect(made).To(Equal(3))
	})
})
