package motor

import (
	"encoding/binary"
	"math"
	"time"
)

// ODrive CANSimple command ids, grounded on original_source's
// motor_odrive.py command_set. Only the subset the control loop's motor
// commands and telemetry ingestion actually exercise is reproduced here.
const (
	cmdSetRequestedState   = 0x007
	cmdGetEncoderEstimates = 0x009
	cmdSetInputVel         = 0x00d
	cmdSetInputTorque      = 0x00e
	cmdClearErrors         = 0x018

	// axisStateClosedLoopControl is ODrive's AXIS_STATE_CLOSED_LOOP_CONTROL.
	axisStateClosedLoopControl = 8
)

// canID packs a CANSimple arbitration ID: node id in the high bits, command
// id in the low 5 bits, matching motor_odrive.py's convention.
func canID(nodeID, cmdID uint32) uint32 { return (nodeID << 5) | cmdID }

func decodeCANID(cobID uint32) (nodeID, cmdID uint32) { return cobID >> 5, cobID & 0x1F }

// ODriveBus implements MotorDriver on top of a raw CANEndpoint by encoding
// the ODrive CANSimple command set, and decodes get_encoder_estimates reply
// frames into calls on onTelemetry -- the frame decoder §4.2 calls for,
// wired to Controller.OnMotorTelemetry in cmd/fieldbusd so the odometry
// path is driven by the running daemon's CAN traffic, not only by tests.
type ODriveBus struct {
	raw         CANEndpoint
	onTelemetry func(nodeID uint32, turnsPerSecond float64, recvStamp time.Time)
}

// NewODriveBus wraps raw and registers the telemetry frame decoder.
// onTelemetry may be nil for a caller with no interest in telemetry (e.g. a
// one-shot command sender).
func NewODriveBus(raw CANEndpoint, onTelemetry func(nodeID uint32, turnsPerSecond float64, recvStamp time.Time)) *ODriveBus {
	b := &ODriveBus{raw: raw, onTelemetry: onTelemetry}
	raw.AddReader(b.handleFrame)
	return b
}

func (b *ODriveBus) handleFrame(cobID uint32, payload []byte, recvStamp time.Time) {
	if b.onTelemetry == nil || len(payload) < 8 {
		return
	}
	nodeID, cmdID := decodeCANID(cobID)
	if cmdID != cmdGetEncoderEstimates {
		return
	}
	turnsPerSecond := float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[4:8])))
	b.onTelemetry(nodeID, turnsPerSecond, recvStamp)
}

// SetVelocityCommand encodes a set_input_vel frame (input_vel float32,
// torque_ff float32 left zero -- this module doesn't use velocity-ramp
// torque feedforward).
func (b *ODriveBus) SetVelocityCommand(nodeID uint32, turnsPerSecond float64) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], math.Float32bits(float32(turnsPerSecond)))
	return b.raw.Send(canID(nodeID, cmdSetInputVel), payload, 0)
}

// SetBrakeCurrent encodes a set_input_torque frame, commanding the brake
// current directly as a torque setpoint in amps.
func (b *ODriveBus) SetBrakeCurrent(nodeID uint32, amps float64) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, math.Float32bits(float32(amps)))
	return b.raw.Send(canID(nodeID, cmdSetInputTorque), payload, 0)
}

// ClearErrors encodes a clear_errors frame (no payload).
func (b *ODriveBus) ClearErrors(nodeID uint32) error {
	return b.raw.Send(canID(nodeID, cmdClearErrors), nil, 0)
}

// SetClosedLoopControl encodes a set_requested_state frame requesting
// AXIS_STATE_CLOSED_LOOP_CONTROL.
func (b *ODriveBus) SetClosedLoopControl(nodeID uint32) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, axisStateClosedLoopControl)
	return b.raw.Send(canID(nodeID, cmdSetRequestedState), payload, 0)
}

// EncodeEncoderEstimate builds a get_encoder_estimates reply frame carrying
// turnsPerSecond as the velocity estimate (position estimate left zero) --
// used by FakeCANBus's loopback to synthesize telemetry from commanded
// velocity in the absence of a real ODrive.
func EncodeEncoderEstimate(nodeID uint32, turnsPerSecond float64) (cobID uint32, payload []byte) {
	payload = make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[4:8], math.Float32bits(float32(turnsPerSecond)))
	return canID(nodeID, cmdGetEncoderEstimates), payload
}

// DecodeSetVelocityCommand reports the commanded turns/s if cobID/payload
// encode a set_input_vel frame, used by FakeCANBus's loopback to mirror a
// velocity command back as telemetry.
func DecodeSetVelocityCommand(cobID uint32, payload []byte) (nodeID uint32, turnsPerSecond float64, ok bool) {
	nodeID, cmdID := decodeCANID(cobID)
	if cmdID != cmdSetInputVel || len(payload) < 4 {
		return 0, 0, false
	}
	return nodeID, float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[0:4]))), true
}
