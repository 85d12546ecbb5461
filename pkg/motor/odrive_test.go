package motor

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestODriveBusEncodesSetVelocityCommand(t *testing.T) {
	raw := NewFakeCANBus()
	bus := NewODriveBus(raw, nil)

	require.NoError(t, bus.SetVelocityCommand(10, 6.0))

	payload, ok := raw.LastFrame(canID(10, cmdSetInputVel))
	require.True(t, ok)
	nodeID, turnsPerSecond, ok := DecodeSetVelocityCommand(canID(10, cmdSetInputVel), payload)
	require.True(t, ok)
	require.Equal(t, uint32(10), nodeID)
	require.InDelta(t, 6.0, turnsPerSecond, 1e-6)
}

func TestODriveBusEncodesBrakeCurrentAsInputTorque(t *testing.T) {
	raw := NewFakeCANBus()
	bus := NewODriveBus(raw, nil)

	require.NoError(t, bus.SetBrakeCurrent(10, 2.5))

	payload, ok := raw.LastFrame(canID(10, cmdSetInputTorque))
	require.True(t, ok)
	require.InDelta(t, 2.5, float64(math.Float32frombits(leUint32(payload))), 1e-6)
}

func TestODriveBusStartupSequenceCommands(t *testing.T) {
	raw := NewFakeCANBus()
	bus := NewODriveBus(raw, nil)

	require.NoError(t, bus.ClearErrors(10))
	_, ok := raw.LastFrame(canID(10, cmdClearErrors))
	require.True(t, ok)

	require.NoError(t, bus.SetClosedLoopControl(10))
	payload, ok := raw.LastFrame(canID(10, cmdSetRequestedState))
	require.True(t, ok)
	require.Equal(t, uint32(axisStateClosedLoopControl), leUint32(payload))
}

func TestODriveBusDecodesEncoderEstimateIntoTelemetry(t *testing.T) {
	raw := NewFakeCANBus()
	var gotNode uint32
	var gotVel float64
	bus := NewODriveBus(raw, func(nodeID uint32, turnsPerSecond float64, recvStamp time.Time) {
		gotNode, gotVel = nodeID, turnsPerSecond
	})

	cobID, payload := EncodeEncoderEstimate(10, 4.0)
	for _, reader := range raw.readers {
		reader(cobID, payload, time.Now())
	}

	require.Equal(t, uint32(10), gotNode)
	require.InDelta(t, 4.0, gotVel, 1e-6)
	_ = bus
}

func TestODriveBusIgnoresNonTelemetryFrames(t *testing.T) {
	raw := NewFakeCANBus()
	called := false
	bus := NewODriveBus(raw, func(nodeID uint32, turnsPerSecond float64, recvStamp time.Time) {
		called = true
	})

	for _, reader := range raw.readers {
		reader(canID(10, cmdClearErrors), nil, time.Now())
	}
	require.False(t, called)
	_ = bus
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
