// Package motor drives the CAN-attached hub motors: rad/s-to-turns/s unit
// conversion with per-motor gear ratio and sign inversion, an update-rate
// tracker, and telemetry-freshness readiness.
package motor

import (
	"math"
	"time"

	"github.com/fieldctl/fieldbus/pkg/log"
)

const updateRateWindow = 1 * time.Second

// MotorDriver is the per-node command surface a Motor issues against: the
// ODrive CANSimple commands (original_source's motor_odrive.py HubMotor)
// that the control loop's tick needs, independent of how they get onto the
// wire. ODriveBus implements this on top of a raw CANEndpoint; FakeMotorDriver
// stands in for it under test.
type MotorDriver interface {
	SetVelocityCommand(nodeID uint32, turnsPerSecond float64) error
	SetBrakeCurrent(nodeID uint32, amps float64) error
	ClearErrors(nodeID uint32) error
	SetClosedLoopControl(nodeID uint32) error
}

// Motor wraps one CAN-attached hub motor: a node ID on the bus, the gear
// ratio needed to convert between motor shaft turns/s and wheel rad/s, and
// whether the motor's sign convention needs inverting
// (the two sides of a differential-drive chassis spin opposite ways for
// forward motion).
type Motor struct {
	name      string
	nodeID    uint32
	endpoint  MotorDriver
	gearRatio float64
	invert    bool

	measuredVelocityRads float64
	updateTimes          []time.Time
	readiness            *Readiness
}

// New constructs a Motor and issues the startup sequence the original
// brings every motor up with: clear latched errors, then request closed-
// loop control.
func New(name string, nodeID uint32, endpoint MotorDriver, gearRatio float64, invert bool) (*Motor, error) {
	m := &Motor{
		name:      name,
		nodeID:    nodeID,
		endpoint:  endpoint,
		gearRatio: gearRatio,
		invert:    invert,
		readiness: NewReadiness(time.Now()),
	}
	if err := endpoint.ClearErrors(nodeID); err != nil {
		return nil, err
	}
	if err := endpoint.SetClosedLoopControl(nodeID); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the motor's configured name, as used in logging.
func (m *Motor) Name() string { return m.name }

func (m *Motor) sign() float64 {
	if m.invert {
		return -1
	}
	return 1
}

// SetVelocityRads commands the motor to the given wheel angular velocity
// in rad/s, converting through the gear ratio and sign.
func (m *Motor) SetVelocityRads(wheelRads float64) error {
	turnsPerSecond := m.sign() * wheelRads / (2 * math.Pi) * m.gearRatio
	if err := m.endpoint.SetVelocityCommand(m.nodeID, turnsPerSecond); err != nil {
		log.WithMotor(m.name).Warn().Err(err).Msg("velocity command failed")
		return err
	}
	return nil
}

// Brake commands the given brake current in amps.
func (m *Motor) Brake(amps float64) error {
	if err := m.endpoint.SetBrakeCurrent(m.nodeID, amps); err != nil {
		log.WithMotor(m.name).Warn().Err(err).Msg("brake command failed")
		return err
	}
	return nil
}

// OnTelemetry records a CAN telemetry sample: the raw motor shaft velocity
// in turns/s, converted back into wheel rad/s through the gear ratio and
// sign, and an update-rate sample at now.
func (m *Motor) OnTelemetry(turnsPerSecond float64, now time.Time) {
	m.measuredVelocityRads = m.sign() * turnsPerSecond * 2 * math.Pi / m.gearRatio

	m.updateTimes = append(m.updateTimes, now)
	cutoff := now.Add(-updateRateWindow)
	i := 0
	for i < len(m.updateTimes) && m.updateTimes[i].Before(cutoff) {
		i++
	}
	m.updateTimes = m.updateTimes[i:]

	m.readiness.Observe(now)
}

// VelocityRads returns the most recently observed wheel angular velocity.
func (m *Motor) VelocityRads() float64 { return m.measuredVelocityRads }

// AverageUpdateRate returns the observed CAN telemetry rate (Hz) over the
// trailing window.
func (m *Motor) AverageUpdateRate() float64 {
	if len(m.updateTimes) < 2 {
		return 0
	}
	span := m.updateTimes[len(m.updateTimes)-1].Sub(m.updateTimes[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(m.updateTimes)-1) / span
}

// EvaluateReadiness ages out stale telemetry for this tick.
func (m *Motor) EvaluateReadiness(now time.Time, cfg ReadinessConfig) {
	m.readiness.Evaluate(now, cfg)
}

// Ready reports whether this motor's telemetry is currently trusted.
func (m *Motor) Ready() bool { return m.readiness.Healthy() }
