package motor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIssuesClearErrorsThenClosedLoop(t *testing.T) {
	ep := NewFakeMotorDriver()
	_, err := New("left_motor", 10, ep, 6.0, false)
	require.NoError(t, err)

	kind, _, ok := ep.LastCommand(10)
	require.True(t, ok)
	require.Equal(t, "closed_loop", kind)
}

func TestNewPropagatesEndpointError(t *testing.T) {
	ep := NewFakeMotorDriver()
	ep.FailNode(10, errors.New("bus down"))
	_, err := New("left_motor", 10, ep, 6.0, false)
	require.Error(t, err)
}

func TestSetVelocityRadsConvertsThroughGearRatioAndSign(t *testing.T) {
	ep := NewFakeMotorDriver()
	m, err := New("right_motor", 20, ep, 6.0, true)
	require.NoError(t, err)

	require.NoError(t, m.SetVelocityRads(2*math.Pi))

	kind, value, ok := ep.LastCommand(20)
	require.True(t, ok)
	require.Equal(t, "velocity", kind)
	require.InDelta(t, -6.0, value, 1e-9) // inverted motor: one wheel rev/s -> -gearRatio turns/s
}

func TestOnTelemetryRoundTripsVelocity(t *testing.T) {
	ep := NewFakeMotorDriver()
	m, err := New("left_motor", 10, ep, 6.0, false)
	require.NoError(t, err)

	m.OnTelemetry(6.0, time.Now()) // 6 turns/s at gearRatio 6 -> 1 wheel rev/s
	require.InDelta(t, 2*math.Pi, m.VelocityRads(), 1e-9)
}

func TestAverageUpdateRateTracksRecentSamples(t *testing.T) {
	ep := NewFakeMotorDriver()
	m, err := New("left_motor", 10, ep, 6.0, false)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 10; i++ {
		m.OnTelemetry(0, start.Add(time.Duration(i)*100*time.Millisecond))
	}
	require.InDelta(t, 10.0, m.AverageUpdateRate(), 0.5)
}

func TestReadinessDegradesAfterRetriesMissedWindows(t *testing.T) {
	ep := NewFakeMotorDriver()
	m, err := New("left_motor", 10, ep, 6.0, false)
	require.NoError(t, err)
	cfg := ReadinessConfig{Window: 10 * time.Millisecond, Retries: 3, StartPeriod: 0}

	start := time.Now()
	m.OnTelemetry(0, start)
	require.True(t, m.Ready())

	for i := 1; i <= 3; i++ {
		m.EvaluateReadiness(start.Add(time.Duration(i)*20*time.Millisecond), cfg)
	}
	require.False(t, m.Ready())
}

func TestReadinessRecoversOnFreshTelemetry(t *testing.T) {
	ep := NewFakeMotorDriver()
	m, err := New("left_motor", 10, ep, 6.0, false)
	require.NoError(t, err)
	cfg := ReadinessConfig{Window: 10 * time.Millisecond, Retries: 2, StartPeriod: 0}

	start := time.Now()
	m.OnTelemetry(0, start)
	m.EvaluateReadiness(start.Add(50*time.Millisecond), cfg)
	m.EvaluateReadiness(start.Add(70*time.Millisecond), cfg)
	require.False(t, m.Ready())

	m.OnTelemetry(0, start.Add(80*time.Millisecond))
	require.True(t, m.Ready())
}
