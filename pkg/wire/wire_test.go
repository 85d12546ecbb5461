package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	now := time.Now().Round(time.Nanosecond)
	e := Event{
		Name:      "pose/tractor/base",
		SendStamp: now,
		Data:      Payload{TypeURL: "tractor.NamedSE3Pose", Value: []byte{1, 2, 3}},
	}
	decoded, err := UnmarshalEvent(e.Marshal())
	require.NoError(t, err)
	require.Equal(t, e.Name, decoded.Name)
	require.True(t, decoded.SendStamp.Equal(now))
	require.True(t, decoded.RecvStamp.IsZero())
	require.Equal(t, e.Data.TypeURL, decoded.Data.TypeURL)
	require.Equal(t, e.Data.Value, decoded.Data.Value)
}

func TestAnnounceRoundTrip(t *testing.T) {
	a := Announce{
		Service: "control",
		Host:    "127.0.0.1",
		Port:    54321,
		Subscriptions: []Subscription{
			{Name: "steering"},
			{Name: "pose/tractor/base/goal"},
		},
	}
	decoded, err := UnmarshalAnnounce(a.Marshal())
	require.NoError(t, err)
	require.Equal(t, a.Service, decoded.Service)
	require.Equal(t, a.Host, decoded.Host)
	require.Equal(t, a.Port, decoded.Port)
	require.Len(t, decoded.Subscriptions, 2)
	require.Equal(t, "steering", decoded.Subscriptions[0].Name)
}

func TestNamedSE3PoseRoundTrip(t *testing.T) {
	n := NamedSE3Pose{
		FrameA: "tractor/base",
		FrameB: "tractor/base/goal",
		APoseB: Pose{X: 1, Y: -2.5, QW: 1},
	}
	decoded, err := UnmarshalNamedSE3Pose(n.Marshal())
	require.NoError(t, err)
	require.Equal(t, n.FrameA, decoded.FrameA)
	require.Equal(t, n.FrameB, decoded.FrameB)
	require.InDelta(t, n.APoseB.X, decoded.APoseB.X, 1e-12)
	require.InDelta(t, n.APoseB.Y, decoded.APoseB.Y, 1e-12)
	require.InDelta(t, n.APoseB.QW, decoded.APoseB.QW, 1e-12)
}

func TestSteeringCommandRoundTrip(t *testing.T) {
	c := SteeringCommand{Mode: ModeServo, Velocity: 0.5, AngularVelocity: -0.1, Brake: 0}
	decoded, err := UnmarshalSteeringCommand(c.Marshal())
	require.NoError(t, err)
	require.Equal(t, c.Mode, decoded.Mode)
	require.InDelta(t, c.Velocity, decoded.Velocity, 1e-12)
	require.InDelta(t, c.AngularVelocity, decoded.AngularVelocity, 1e-12)
}

func TestTractorStateRoundTrip(t *testing.T) {
	s := TractorState{
		WheelVelocityRadsLeft:  1.5,
		AbsDistanceTraveled:    12.25,
		OdometryPoseBase: NamedSE3Pose{
			FrameA: "odometry/wheel",
			FrameB: "tractor/base",
			APoseB: Pose{X: 3, QW: 1},
		},
	}
	decoded, err := UnmarshalTractorState(s.Marshal())
	require.NoError(t, err)
	require.InDelta(t, s.WheelVelocityRadsLeft, decoded.WheelVelocityRadsLeft, 1e-12)
	require.InDelta(t, s.AbsDistanceTraveled, decoded.AbsDistanceTraveled, 1e-12)
	require.Equal(t, s.OdometryPoseBase.FrameA, decoded.OdometryPoseBase.FrameA)
}
