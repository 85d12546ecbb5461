package steerinput

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantInputs(axes map[string]float64, buttons map[string]bool) Inputs {
	return Inputs{
		Axis:   func(name string) float64 { return axes[name] },
		Button: func(name string) bool { return buttons[name] },
	}
}

func TestManualSteeringStopsWithoutDeadman(t *testing.T) {
	m := NewManualSteering(50)
	cmd := m.Update(constantInputs(map[string]float64{"gas": 1.0}, nil))
	require.Equal(t, 0.0, cmd.Velocity)
	require.Equal(t, 1.0, cmd.Brake)
	require.Equal(t, 0.0, cmd.Deadman)
}

func TestManualSteeringSlewsTowardFullGasOverSeveralTicks(t *testing.T) {
	m := NewManualSteering(50)
	in := constantInputs(map[string]float64{"gas": -1.0}, map[string]bool{"deadman": true})

	var last float64
	for i := 0; i < 200; i++ {
		cmd := m.Update(in)
		assert.GreaterOrEqual(t, cmd.Velocity, last, "velocity must not decrease while commanding full gas")
		last = cmd.Velocity
	}
	require.InDelta(t, m.vMax, last, 0.05)
}

func TestManualSteeringReleasingDeadmanStopsImmediately(t *testing.T) {
	m := NewManualSteering(50)
	in := constantInputs(map[string]float64{"gas": -1.0}, map[string]bool{"deadman": true})
	for i := 0; i < 50; i++ {
		m.Update(in)
	}
	require.Greater(t, m.v, 0.0)

	cmd := m.Update(constantInputs(nil, map[string]bool{"deadman": false}))
	require.Equal(t, 0.0, cmd.Velocity)
	require.Equal(t, 1.0, cmd.Brake)
}

func TestCruiseControlNudgeResetsAngularVelocityWhenReleased(t *testing.T) {
	c := NewCruiseControlSteering(50)
	cmd := c.Update(constantInputs(map[string]float64{"hat0x": 1.0}, nil))
	require.NotEqual(t, 0.0, cmd.AngularVelocity)

	cmd = c.Update(constantInputs(map[string]float64{"hat0x": 0.0}, nil))
	require.InDelta(t, 0.0, cmd.AngularVelocity, 1e-9)
}

func TestCruiseControlSpeedPersistsAcrossTicksUntilChanged(t *testing.T) {
	c := NewCruiseControlSteering(50)
	in := constantInputs(map[string]float64{"hat0y": -1.0}, nil)
	for i := 0; i < 10; i++ {
		c.Update(in)
	}
	afterNudge := c.targetSpeed
	require.Greater(t, afterNudge, 0.0)

	cmd := c.Update(constantInputs(nil, nil))
	require.InDelta(t, afterNudge, cmd.Velocity+0, math.Abs(c.vAcc)+1e-6)
}

func TestCruiseControlAxisActive(t *testing.T) {
	c := NewCruiseControlSteering(50)
	require.False(t, c.AxisActive(constantInputs(nil, nil)))
	require.True(t, c.AxisActive(constantInputs(map[string]float64{"hat0x": 1.0}, nil)))
}
