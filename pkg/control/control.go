// Package control implements the 50 Hz tractor control loop: odometry
// integration, goal ingestion, steering-command dispatch, and per-motor
// command issuance.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldctl/fieldbus/pkg/bus"
	"github.com/fieldctl/fieldbus/pkg/kinematics"
	"github.com/fieldctl/fieldbus/pkg/log"
	"github.com/fieldctl/fieldbus/pkg/metrics"
	"github.com/fieldctl/fieldbus/pkg/motor"
	"github.com/fieldctl/fieldbus/pkg/se3"
	"github.com/fieldctl/fieldbus/pkg/steering"
	"github.com/fieldctl/fieldbus/pkg/timer"
	"github.com/fieldctl/fieldbus/pkg/wire"
)

const (
	eventPoseBase     = "pose/tractor/base"
	eventPoseBaseGoal = "pose/tractor/base/goal"
	eventTractorState = "tractor_state"

	internalHistoryWindow = 1 * time.Second
	goalHistoryWindow     = 10 * time.Second

	minDt = 0.0
	maxDt = 1.0 // seconds

	brakeCurrentAmps = 10.0

	diagnosticLogEvery = 5 * time.Second
)

// Config parameterizes the control loop's rate and kinematic constants.
type Config struct {
	CommandRateHz float64
	Differential  kinematics.Differential
	GoalMaxV      float64
	GoalMaxW      float64
	GearRatio     float64
}

// DefaultConfig returns the tractor's nominal chassis constants.
func DefaultConfig() Config {
	return Config{
		CommandRateHz: 50,
		Differential:  kinematics.Differential{WheelRadius: 0.2, WheelBaseline: 0.9},
		GoalMaxV:      2.0,
		GoalMaxW:      1.5,
		GearRatio:     6.0,
	}
}

// Controller composes the event bus, steering client, four hub motors, the
// differential-drive kinematics, and the goal servo into the tractor's
// command loop, mirroring the original's TractorController almost
// component-for-component.
type Controller struct {
	eventBus *bus.Bus
	steering *steering.Client
	cfg      Config

	rightMotor, rightMotorAft *motor.Motor
	leftMotor, leftMotorAft   *motor.Motor

	goalController *kinematics.GoalController

	odomPose      se3.Pose
	internalHist  *PoseHistory
	goalHist      *PoseHistory
	lastTickStamp time.Time
	haveLastTick  bool
	nCycle        int64

	state wire.TractorState

	readinessCfg motor.ReadinessConfig

	metricsCollector *metrics.Collector

	// now is the tick loop's clock source, overridable in tests; defaults
	// to time.Now.
	now func() time.Time
}

// New constructs a Controller wired to eventBus and can, bringing up all
// four hub motors via the startup sequence New issues on each.
func New(eventBus *bus.Bus, can motor.MotorDriver, cfg Config) (*Controller, error) {
	c := &Controller{
		eventBus:       eventBus,
		cfg:            cfg,
		goalController: kinematics.NewGoalController(cfg.CommandRateHz, cfg.GoalMaxV, cfg.GoalMaxW),
		internalHist:   NewPoseHistory(internalHistoryWindow),
		goalHist:       NewPoseHistory(goalHistoryWindow),
		odomPose:       se3.Identity(),
		readinessCfg:   motor.DefaultReadinessConfig(),
		now:            time.Now,
	}

	var err error
	c.rightMotor, err = motor.New("right_motor", 20, can, cfg.GearRatio, true)
	if err != nil {
		return nil, fmt.Errorf("control: bringing up right_motor: %w", err)
	}
	c.rightMotorAft, err = motor.New("right_motor_aft", 21, can, cfg.GearRatio, true)
	if err != nil {
		return nil, fmt.Errorf("control: bringing up right_motor_aft: %w", err)
	}
	c.leftMotor, err = motor.New("left_motor", 10, can, cfg.GearRatio, false)
	if err != nil {
		return nil, fmt.Errorf("control: bringing up left_motor: %w", err)
	}
	c.leftMotorAft, err = motor.New("left_motor_aft", 11, can, cfg.GearRatio, false)
	if err != nil {
		return nil, fmt.Errorf("control: bringing up left_motor_aft: %w", err)
	}

	eventBus.AddSubscriptions([]string{eventPoseBaseGoal})
	c.steering = steering.NewClient(eventBus)

	return c, nil
}

func (c *Controller) motors() []*motor.Motor {
	return []*motor.Motor{c.rightMotor, c.rightMotorAft, c.leftMotor, c.leftMotorAft}
}

// Run registers the goal-event callback and starts the 50 Hz tick timer,
// blocking until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.eventBus.AddEventCallback(ctx, c.onEvent)

	c.metricsCollector = metrics.NewCollector(c.steering, c.eventBus.Dispatch)
	c.metricsCollector.Start()
	defer c.metricsCollector.Stop()

	period := time.Duration(float64(time.Second) / c.cfg.CommandRateHz)
	t := timer.New(period, "control_loop", c.timedTick, c.eventBus.Dispatch)
	log.WithComponent("control").Info().Float64("rate_hz", c.cfg.CommandRateHz).Msg("starting control loop")
	t.Start(ctx)
}

// timedTick wraps tick with the control-loop tick-duration histogram.
func (c *Controller) timedTick(nPeriods int) {
	tm := metrics.NewTimer()
	c.tick(nPeriods)
	tm.ObserveDuration(metrics.ControlTickDuration)
}

// OnMotorTelemetry feeds a CAN telemetry sample (shaft turns/s) for the
// named motor into its readiness and velocity tracking. Callers outside
// tests must invoke this via c.eventBus.Dispatch rather than directly from
// a CAN reader goroutine: motor state is read by tick on the dispatch
// goroutine, and §5 requires all state mutation to be serialized through
// it (see motor.ODriveBus's wiring in cmd/fieldbusd).
func (c *Controller) OnMotorTelemetry(nodeID uint32, turnsPerSecond float64, now time.Time) {
	switch nodeID {
	case 10:
		c.leftMotor.OnTelemetry(turnsPerSecond, now)
	case 11:
		c.leftMotorAft.OnTelemetry(turnsPerSecond, now)
	case 20:
		c.rightMotor.OnTelemetry(turnsPerSecond, now)
	case 21:
		c.rightMotorAft.OnTelemetry(turnsPerSecond, now)
	}
}

func (c *Controller) onEvent(e wire.Event) {
	if e.Name != eventPoseBaseGoal {
		return
	}
	logger := log.WithEventName(eventPoseBaseGoal)

	pose, err := wire.UnmarshalNamedSE3Pose(e.Data.Value)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping malformed goal pose")
		return
	}
	if pose.FrameA != "tractor/base" {
		logger.Warn().Str("frame_a", pose.FrameA).Msg("goal frame mismatch, dropping")
		return
	}

	odomPoseTractor, ok := c.goalHist.FindNearest(e.SendStamp)
	if !ok {
		logger.Warn().Msg("no pose history entry for goal stamp, dropping")
		return
	}

	tractorPoseGoal := wirePoseToSE3(pose.APoseB)
	odomPoseGoal := odomPoseTractor.Compose(tractorPoseGoal)
	c.goalController.SetGoal(odomPoseGoal)
}

func wirePoseToSE3(p wire.Pose) se3.Pose {
	return se3.Pose{X: p.X, Y: p.Y, Z: p.Z, QX: p.QX, QY: p.QY, QZ: p.QZ, QW: p.QW}
}

func se3ToWirePose(p se3.Pose) wire.Pose {
	return wire.Pose{X: p.X, Y: p.Y, Z: p.Z, QX: p.QX, QY: p.QY, QZ: p.QZ, QW: p.QW}
}

// tick runs one control loop iteration; n_periods is the number of periods
// elapsed since the last call (normally 1).
func (c *Controller) tick(nPeriods int) {
	now := c.now()
	logger := log.WithComponent("control")

	if c.nCycle%int64(diagnosticLogEvery.Seconds()*c.cfg.CommandRateHz) == 0 {
		for _, m := range c.motors() {
			logger.Info().Str("motor", m.Name()).Float64("velocity_rads", m.VelocityRads()).
				Float64("update_rate_hz", m.AverageUpdateRate()).Bool("ready", m.Ready()).Msg("motor state")
		}
		logger.Info().Interface("state", c.state).Msg("tractor state")
	}

	for _, m := range c.motors() {
		m.EvaluateReadiness(now, c.readinessCfg)
	}

	c.state.Stamp = now
	c.state.WheelVelocityRadsLeft = c.leftMotor.VelocityRads()
	c.state.WheelVelocityRadsRight = c.rightMotor.VelocityRads()
	c.state.AverageUpdateRateLeftMotor = c.leftMotor.AverageUpdateRate()
	c.state.AverageUpdateRateRightMotor = c.rightMotor.AverageUpdateRate()

	if c.haveLastTick {
		dt := now.Sub(c.lastTickStamp).Seconds()
		if dt < minDt || dt > maxDt {
			logger.Warn().Int("n_periods", nPeriods).Float64("dt", dt).Msg("odometry time delta out of bounds, clipping")
		}
		dt = clipFloat(dt, minDt, maxDt)
		c.state.Dt = dt

		delta := c.cfg.Differential.PoseDelta(c.state.WheelVelocityRadsLeft, c.state.WheelVelocityRadsRight, dt)
		c.odomPose = c.odomPose.Compose(delta)
		c.internalHist.Push(now, c.odomPose)
		c.goalHist.Push(now, c.odomPose)
		c.state.AbsDistanceTraveled += delta.TranslationNorm()

		c.state.OdometryPoseBase = wire.NamedSE3Pose{
			FrameA: "odometry/wheel",
			FrameB: "tractor/base",
			APoseB: se3ToWirePose(c.odomPose),
		}
		c.eventBus.Send(wire.Event{
			Name:      eventPoseBase,
			SendStamp: now,
			Data: wire.Payload{
				TypeURL: "NamedSE3Pose",
				Value:   c.state.OdometryPoseBase.Marshal(),
			},
		})
	}
	c.lastTickStamp = now
	c.haveLastTick = true
	c.nCycle++

	cmd := c.steering.Command()
	switch {
	case cmd.Brake > 0:
		c.hardStop()
	case cmd.Mode == wire.ModeServo:
		c.servo(cmd)
	case cmd.Mode == wire.ModeJoystickManual || cmd.Mode == wire.ModeJoystickCruiseControl:
		c.commandVelocity(cmd.Velocity, cmd.AngularVelocity)
	default:
		// Unrecognized or unspecified mode with brake==0 degrades to
		// hard-stop rather than continuing to command the last velocity.
		c.hardStop()
	}

	c.eventBus.Send(wire.Event{
		Name:      eventTractorState,
		SendStamp: now,
		Data:      wire.Payload{TypeURL: "TractorState", Value: c.state.Marshal()},
	})
}

func (c *Controller) hardStop() {
	c.state.CommandedBrakeCurrent = brakeCurrentAmps
	c.state.CommandedWheelVelocityRadsLeft = 0
	c.state.CommandedWheelVelocityRadsRight = 0
	c.state.TargetUnicycleVelocity = 0
	c.state.TargetUnicycleAngularVelocity = 0

	for _, m := range []*motor.Motor{c.rightMotor, c.leftMotor} {
		_ = m.Brake(brakeCurrentAmps)
	}
	for _, m := range []*motor.Motor{c.rightMotorAft, c.leftMotorAft} {
		_ = m.SetVelocityRads(0)
	}
	c.goalController.ClearGoal()
}

func (c *Controller) servo(cmd wire.SteeringCommand) {
	maxV := cmd.Velocity
	if maxV < 0 {
		maxV = 0
	}
	v, w := c.goalController.Tick(c.odomPose, maxV)
	c.commandVelocity(v, w)
}

func (c *Controller) commandVelocity(v, w float64) {
	c.state.TargetUnicycleVelocity = v
	c.state.TargetUnicycleAngularVelocity = w

	left, right := c.cfg.Differential.UnicycleToWheel(v, w)
	c.state.CommandedBrakeCurrent = 0
	c.state.CommandedWheelVelocityRadsLeft = left
	c.state.CommandedWheelVelocityRadsRight = right

	_ = c.leftMotor.SetVelocityRads(left)
	_ = c.leftMotorAft.SetVelocityRads(left)
	_ = c.rightMotor.SetVelocityRads(right)
	_ = c.rightMotorAft.SetVelocityRads(right)
}

func clipFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
