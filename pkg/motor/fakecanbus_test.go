package motor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeCANBusRecordsSentFrames(t *testing.T) {
	bus := NewFakeCANBus()
	require.NoError(t, bus.Send(0x10, []byte{1, 2, 3, 4}, 0))

	payload, ok := bus.LastFrame(0x10)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, payload)

	_, ok = bus.LastFrame(0x11)
	require.False(t, ok)
}

func TestFakeCANBusDeliversToReadersInRegistrationOrder(t *testing.T) {
	bus := NewFakeCANBus()
	bus.Loopback = func(cobID uint32, payload []byte) (uint32, []byte, bool) {
		return cobID + 1, payload, true
	}

	var order []int
	bus.AddReader(func(cobID uint32, payload []byte, recvStamp time.Time) { order = append(order, 1) })
	bus.AddReader(func(cobID uint32, payload []byte, recvStamp time.Time) { order = append(order, 2) })

	require.NoError(t, bus.Send(0x10, nil, 0))
	require.Equal(t, []int{1, 2}, order)
}

func TestFakeCANBusNoLoopbackDeliversNothing(t *testing.T) {
	bus := NewFakeCANBus()
	called := false
	bus.AddReader(func(cobID uint32, payload []byte, recvStamp time.Time) { called = true })

	require.NoError(t, bus.Send(0x10, nil, 0))
	require.False(t, called)
}

func TestPerfectTrackingLoopbackMirrorsVelocityAsTelemetry(t *testing.T) {
	bus := NewFakeCANBus()
	bus.Loopback = PerfectTrackingLoopback

	var gotNode uint32
	var gotVel float64
	odrive := NewODriveBus(bus, func(nodeID uint32, turnsPerSecond float64, recvStamp time.Time) {
		gotNode, gotVel = nodeID, turnsPerSecond
	})
	require.NoError(t, odrive.SetVelocityCommand(7, 3.5))

	require.Equal(t, uint32(7), gotNode)
	require.InDelta(t, 3.5, gotVel, 1e-6)
}

func TestPerfectTrackingLoopbackIgnoresNonVelocityFrames(t *testing.T) {
	_, _, ok := PerfectTrackingLoopback(canID(7, cmdClearErrors), nil)
	require.False(t, ok)
}
