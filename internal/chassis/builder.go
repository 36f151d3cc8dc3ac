package chassis

import (
	"fmt"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/zap"

	"github.com/san-kum/chassisctl/internal/control"
	"github.com/san-kum/chassisctl/internal/device"
	"github.com/san-kum/chassisctl/internal/filter"
	"github.com/san-kum/chassisctl/internal/kinematics"
	"github.com/san-kum/chassisctl/internal/odometry"
	"github.com/san-kum/chassisctl/internal/timeutil"
)

// Layout is the drivetrain motor arrangement.
type Layout int

const (
	LayoutSkidSteer Layout = iota
	LayoutXDrive
)

func (l Layout) String() string {
	if l == LayoutXDrive {
		return "x-drive"
	}
	return "skid-steer"
}

// Strategy is the chassis controller variant Build produces.
type Strategy int

const (
	// StrategyIntegrated uses onboard motor control and no goroutine.
	StrategyIntegrated Strategy = iota
	// StrategyPID runs a control goroutine.
	StrategyPID
	// StrategyOdomIntegrated uses onboard motor control plus an odometry
	// goroutine.
	StrategyOdomIntegrated
	// StrategyOdomPID runs both a control and an odometry goroutine.
	StrategyOdomPID
)

func (s Strategy) String() string {
	switch s {
	case StrategyIntegrated:
		return "integrated"
	case StrategyPID:
		return "pid"
	case StrategyOdomIntegrated:
		return "odom-integrated"
	case StrategyOdomPID:
		return "odom-pid"
	default:
		return "unknown"
	}
}

// ControlLoop reports whether the strategy runs a control goroutine.
func (s Strategy) ControlLoop() bool { return s == StrategyPID || s == StrategyOdomPID }

// OdometryLoop reports whether the strategy runs an odometry goroutine.
func (s Strategy) OdometryLoop() bool { return s == StrategyOdomIntegrated || s == StrategyOdomPID }

type selection struct {
	Odometry bool
	Gains    bool
}

var strategyTable = map[selection]Strategy{
	{Odometry: true, Gains: true}:   StrategyOdomPID,
	{Odometry: true, Gains: false}:  StrategyOdomIntegrated,
	{Odometry: false, Gains: true}:  StrategyPID,
	{Odometry: false, Gains: false}: StrategyIntegrated,
}

// EstimatorSource is where the odometry estimator comes from.
type EstimatorSource int

const (
	EstimatorNone EstimatorSource = iota
	EstimatorTwoEncoder
	EstimatorThreeEncoder
	EstimatorCustom
)

func (e EstimatorSource) String() string {
	switch e {
	case EstimatorTwoEncoder:
		return "two-encoder"
	case EstimatorThreeEncoder:
		return "three-encoder"
	case EstimatorCustom:
		return "custom"
	default:
		return "none"
	}
}

// EstimatorFactory creates a custom odometry estimator. It receives the
// chassis's own kinematics model and must read from it.
type EstimatorFactory func(
	model kinematics.Model,
	scales kinematics.ChassisScales,
	tu timeutil.TimeUtil,
	logger golog.Logger,
) (odometry.Estimator, error)

// Plan is the outcome of the build-time selection rules.
type Plan struct {
	Layout      Layout
	Kinematics  kinematics.Kind
	Strategy    Strategy
	Estimator   EstimatorSource
	MaxVelocity float64
}

// DefaultDimensions are a 4 inch wheel on an 11.5 inch track.
var DefaultDimensions = kinematics.Dimensions{
	WheelDiameter: 0.1016,
	WheelTrack:    0.2921,
}

// Builder accumulates a chassis configuration. Options may be given in any
// order; nothing is validated until Plan, Build or BuildOdometry.
type Builder struct {
	logger golog.Logger

	hasMotors bool
	layout    Layout
	left      device.Motor
	right     device.Motor
	xdrive    [4]device.Motor

	sensorsSetByUser bool
	leftSensor       device.RotarySensor
	rightSensor      device.RotarySensor
	middleSensor     device.RotarySensor

	hasGains       bool
	distanceGains  control.Gains
	turnGains      control.Gains
	angleGains     control.Gains
	distanceFilter filter.Factory
	turnFilter     filter.Factory
	angleFilter    filter.Factory
	timeFactory    timeutil.Factory

	hasOdom          bool
	estimatorFactory EstimatorFactory
	nilEstimator     bool
	moveThreshold    float64
	turnThreshold    float64

	gearset         device.GearsetRatioPair
	dimensions      kinematics.Dimensions
	scales          *kinematics.ChassisScales
	maxVelocity     float64
	maxVelSetByUser bool
	maxVoltage      float64
	stallTimeout    time.Duration
}

// NewBuilder starts a configuration with a green gearset, default
// dimensions, full voltage and the default stall timeout. A nil logger
// discards output.
func NewBuilder(logger golog.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Builder{
		logger:       logger,
		timeFactory:  timeutil.DefaultFactory(),
		gearset:      device.NewGearsetRatioPair(device.Green, 1),
		dimensions:   DefaultDimensions,
		maxVoltage:   kinematics.DefaultMaxVoltage,
		stallTimeout: DefaultStallTimeout,
	}
}

// WithMotors selects the skid-steer layout. Motor groups are accepted as
// motors.
func (b *Builder) WithMotors(left, right device.Motor) *Builder {
	b.hasMotors = left != nil && right != nil
	b.layout = LayoutSkidSteer
	b.left, b.right = left, right
	return b
}

// WithXDriveMotors selects the X-drive layout.
func (b *Builder) WithXDriveMotors(topLeft, topRight, bottomRight, bottomLeft device.Motor) *Builder {
	b.hasMotors = topLeft != nil && topRight != nil && bottomRight != nil && bottomLeft != nil
	b.layout = LayoutXDrive
	b.xdrive = [4]device.Motor{topLeft, topRight, bottomRight, bottomLeft}
	return b
}

// WithSensors replaces the default integrated encoders.
func (b *Builder) WithSensors(left, right device.RotarySensor) *Builder {
	b.sensorsSetByUser = true
	b.leftSensor, b.rightSensor = left, right
	b.middleSensor = nil
	return b
}

// WithTrackingSensors sets left, right and a middle lateral tracking sensor.
// A middle sensor selects three-encoder kinematics and odometry.
func (b *Builder) WithTrackingSensors(left, right, middle device.RotarySensor) *Builder {
	b.sensorsSetByUser = true
	b.leftSensor, b.rightSensor = left, right
	b.middleSensor = middle
	return b
}

// WithGains selects a PID strategy. The angle gains default to the turn
// gains.
func (b *Builder) WithGains(distance, turn control.Gains, angle ...control.Gains) *Builder {
	b.hasGains = true
	b.distanceGains, b.turnGains, b.angleGains = distance, turn, turn
	if len(angle) > 0 {
		b.angleGains = angle[0]
	}
	return b
}

// WithDerivativeFilters sets the derivative filters of the distance, turn and
// angle loops. A nil factory means no filtering.
func (b *Builder) WithDerivativeFilters(distance, turn, angle filter.Factory) *Builder {
	b.distanceFilter, b.turnFilter, b.angleFilter = distance, turn, angle
	return b
}

// WithTimeUtilFactory sets the clock and settle thresholds of the
// controllers. The background loops share its clock.
func (b *Builder) WithTimeUtilFactory(f timeutil.Factory) *Builder {
	b.timeFactory = f
	return b
}

// WithOdometry requests encoder odometry. Thresholds are in meters and
// degrees.
func (b *Builder) WithOdometry(moveThreshold, turnThreshold float64) *Builder {
	b.hasOdom = true
	b.estimatorFactory = nil
	b.nilEstimator = false
	b.moveThreshold, b.turnThreshold = moveThreshold, turnThreshold
	return b
}

// WithOdometryFactory requests odometry from a custom estimator. A nil
// factory is a configuration error.
func (b *Builder) WithOdometryFactory(f EstimatorFactory, moveThreshold, turnThreshold float64) *Builder {
	b.hasOdom = true
	b.estimatorFactory = f
	b.nilEstimator = f == nil
	b.moveThreshold, b.turnThreshold = moveThreshold, turnThreshold
	return b
}

// WithGearset sets the cartridge and external ratio.
func (b *Builder) WithGearset(pair device.GearsetRatioPair) *Builder {
	b.gearset = device.NewGearsetRatioPair(pair.Internal, pair.Ratio)
	return b
}

// WithDimensions sets the physical dimensions scales are derived from.
func (b *Builder) WithDimensions(d kinematics.Dimensions) *Builder {
	b.dimensions = d
	b.scales = nil
	return b
}

// WithScales sets the scales directly, overriding dimensions.
func (b *Builder) WithScales(s kinematics.ChassisScales) *Builder {
	b.scales = &s
	return b
}

// WithMaxVelocity overrides the gearset-derived max velocity in rpm.
func (b *Builder) WithMaxVelocity(rpm float64) *Builder {
	b.maxVelocity = rpm
	b.maxVelSetByUser = true
	return b
}

func (b *Builder) WithMaxVoltage(millivolts float64) *Builder {
	b.maxVoltage = millivolts
	return b
}

func (b *Builder) WithStallTimeout(d time.Duration) *Builder {
	b.stallTimeout = d
	return b
}

func (b *Builder) WithLogger(logger golog.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

func (b *Builder) configError(format string, args ...any) error {
	err := &ConfigError{Reason: fmt.Sprintf(format, args...)}
	b.logger.Errorw("chassis build failed", "error", err)
	return err
}

// Plan applies the selection rules without constructing anything.
func (b *Builder) Plan() (Plan, error) {
	if !b.hasMotors {
		return Plan{}, b.configError("no motors given")
	}
	if b.sensorsSetByUser && (b.leftSensor == nil || b.rightSensor == nil) {
		return Plan{}, b.configError("sensors cannot be nil")
	}
	if b.hasOdom && b.layout == LayoutXDrive {
		return Plan{}, b.configError("odometry is only supported with the skid-steer layout")
	}
	if b.nilEstimator {
		return Plan{}, b.configError("odometry estimator factory cannot be nil")
	}
	if b.gearset.Internal.TicksPerRev() == 0 {
		return Plan{}, b.configError("invalid gearset %v", b.gearset.Internal)
	}

	p := Plan{
		Layout:      b.layout,
		Strategy:    strategyTable[selection{Odometry: b.hasOdom, Gains: b.hasGains}],
		MaxVelocity: b.maxVelocity,
	}

	switch {
	case b.layout == LayoutXDrive:
		p.Kinematics = kinematics.KindXDrive
	case b.middleSensor != nil:
		p.Kinematics = kinematics.KindThreeEncoderSkidSteer
	default:
		p.Kinematics = kinematics.KindSkidSteer
	}

	switch {
	case !b.hasOdom:
		p.Estimator = EstimatorNone
	case b.estimatorFactory != nil:
		p.Estimator = EstimatorCustom
	case b.middleSensor != nil:
		p.Estimator = EstimatorThreeEncoder
	default:
		p.Estimator = EstimatorTwoEncoder
	}

	if !b.maxVelSetByUser {
		p.MaxVelocity = b.gearset.Internal.RPM()
	}
	return p, nil
}

// Build constructs the planned controller and starts its goroutines. The
// result is an OdomChassisController when odometry was requested.
func (b *Builder) Build() (ChassisController, error) {
	p, err := b.Plan()
	if err != nil {
		return nil, err
	}
	return b.build(p)
}

// BuildOdometry is Build for configurations that must track pose.
func (b *Builder) BuildOdometry() (OdomChassisController, error) {
	if !b.hasMotors {
		return nil, b.configError("no motors given")
	}
	if !b.hasOdom {
		return nil, b.configError("no odometry information given")
	}
	p, err := b.Plan()
	if err != nil {
		return nil, err
	}
	c, err := b.build(p)
	if err != nil {
		return nil, err
	}
	return c.(OdomChassisController), nil
}

func (b *Builder) build(p Plan) (ChassisController, error) {
	scales, err := b.resolveScales()
	if err != nil {
		return nil, err
	}
	model := b.makeModel(p)

	var estimator odometry.Estimator
	if p.Strategy.OdometryLoop() {
		estimator, err = b.makeEstimator(p, model, scales)
		if err != nil {
			return nil, err
		}
	}

	var base ChassisController
	if p.Strategy.ControlLoop() {
		base = NewPIDController(
			model,
			b.makePID(b.distanceGains, b.distanceFilter),
			b.makePID(b.angleGains, b.angleFilter),
			b.makePID(b.turnGains, b.turnFilter),
			b.gearset,
			scales,
			b.loopTimeUtil(),
			b.stallTimeout,
			b.logger,
		)
	} else {
		left, right := b.sides()
		base = NewIntegratedController(
			model,
			control.NewIntegratedController(left, b.gearset, p.MaxVelocity, b.timeFactory.Create(), b.logger),
			control.NewIntegratedController(right, b.gearset, p.MaxVelocity, b.timeFactory.Create(), b.logger),
			b.gearset,
			scales,
			b.loopTimeUtil(),
			b.stallTimeout,
			b.logger,
		)
	}

	b.logger.Infow("chassis controller built",
		"layout", p.Layout,
		"kinematics", p.Kinematics,
		"strategy", p.Strategy,
		"estimator", p.Estimator,
		"max_velocity", p.MaxVelocity,
	)

	if estimator == nil {
		return base, nil
	}
	return NewOdomController(base, estimator, b.moveThreshold, b.turnThreshold, b.logger), nil
}

func (b *Builder) resolveScales() (kinematics.ChassisScales, error) {
	if b.scales != nil {
		if err := b.scales.Validate(); err != nil {
			return kinematics.ChassisScales{}, b.configError("%v", err)
		}
		return *b.scales, nil
	}
	tpr := b.gearset.Internal.TicksPerRev() / b.gearset.Ratio
	s, err := kinematics.NewChassisScales(b.dimensions, tpr)
	if err != nil {
		return kinematics.ChassisScales{}, b.configError("%v", err)
	}
	return s, nil
}

func (b *Builder) sensors() (left, right device.RotarySensor) {
	if b.sensorsSetByUser {
		return b.leftSensor, b.rightSensor
	}
	if b.layout == LayoutXDrive {
		return device.NewIntegratedEncoder(b.xdrive[kinematics.TopLeft]), device.NewIntegratedEncoder(b.xdrive[kinematics.TopRight])
	}
	return device.NewIntegratedEncoder(b.left), device.NewIntegratedEncoder(b.right)
}

// sides returns one motor per side for onboard position control.
func (b *Builder) sides() (left, right device.Motor) {
	if b.layout == LayoutXDrive {
		return device.NewMotorGroup(b.xdrive[kinematics.TopLeft], b.xdrive[kinematics.BottomLeft]),
			device.NewMotorGroup(b.xdrive[kinematics.TopRight], b.xdrive[kinematics.BottomRight])
	}
	return b.left, b.right
}

func (b *Builder) makeModel(p Plan) kinematics.Model {
	left, right := b.sensors()
	switch p.Kinematics {
	case kinematics.KindXDrive:
		return kinematics.NewXDrive(b.xdrive[0], b.xdrive[1], b.xdrive[2], b.xdrive[3], left, right, p.MaxVelocity, b.maxVoltage)
	case kinematics.KindThreeEncoderSkidSteer:
		return kinematics.NewThreeEncoderSkidSteer(b.left, b.right, left, right, b.middleSensor, p.MaxVelocity, b.maxVoltage)
	default:
		return kinematics.NewSkidSteer(b.left, b.right, left, right, p.MaxVelocity, b.maxVoltage)
	}
}

func (b *Builder) makePID(gains control.Gains, f filter.Factory) *control.PIDController {
	var derivative filter.Filter
	if f != nil {
		derivative = f()
	}
	return control.NewPIDController(gains, b.timeFactory.Create(), derivative)
}

func (b *Builder) makeEstimator(p Plan, model kinematics.Model, scales kinematics.ChassisScales) (odometry.Estimator, error) {
	if p.Estimator != EstimatorCustom {
		est, err := odometry.New(model, scales, b.loopTimeUtil(), b.logger)
		if err != nil {
			return nil, b.configError("odometry: %v", err)
		}
		return est, nil
	}

	est, err := b.estimatorFactory(model, scales, b.loopTimeUtil(), b.logger)
	if err != nil {
		return nil, b.configError("custom odometry: %v", err)
	}
	if est == nil {
		return nil, b.configError("odometry estimator factory returned nil")
	}
	if est.Model() != model {
		return nil, b.configError("odometry estimator must read the chassis model")
	}
	return est, nil
}

// loopTimeUtil is the pacing kit for a background loop, on the controllers'
// clock.
func (b *Builder) loopTimeUtil() timeutil.TimeUtil {
	return timeutil.Factory{Clock: b.timeFactory.Clock, Settle: b.timeFactory.Settle}.Create()
}
