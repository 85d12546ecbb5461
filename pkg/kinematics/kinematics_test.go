package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldctl/fieldbus/pkg/se3"
)

var testDiff = Differential{WheelRadius: 0.2, WheelBaseline: 0.9}

func TestUnicycleWheelRoundTrip(t *testing.T) {
	left, right := testDiff.UnicycleToWheel(0.5, 0.3)
	v, w := testDiff.WheelToUnicycle(left, right)
	require.InDelta(t, 0.5, v, 1e-9)
	require.InDelta(t, 0.3, w, 1e-9)
}

func TestUnicycleToWheelStraightLine(t *testing.T) {
	left, right := testDiff.UnicycleToWheel(1.0, 0.0)
	require.InDelta(t, left, right, 1e-9)
}

func TestPoseDeltaStraightLineAccumulatesDistance(t *testing.T) {
	left, right := testDiff.UnicycleToWheel(1.0, 0.0)
	delta := testDiff.PoseDelta(left, right, 1.0)
	require.InDelta(t, 1.0, delta.TranslationNorm(), 1e-6)
}

func TestGoalControllerDrivesTowardGoalAndStops(t *testing.T) {
	c := NewGoalController(50, 1.0, math.Pi/2)
	goal := se3.Pose{X: 1.0, QW: 1}
	c.SetGoal(goal)

	current := se3.Identity()
	var v, w float64
	for i := 0; i < 5000 && c.HasGoal(); i++ {
		v, w = c.Tick(current, 1.0)
		delta := se3.Exp(v/50, w/50)
		current = current.Compose(delta)
	}
	require.False(t, c.HasGoal(), "controller never reached the goal")

	// With the goal cleared, continued ticking decelerates back to rest.
	for i := 0; i < 100; i++ {
		v, w = c.Tick(current, 1.0)
	}
	require.InDelta(t, 0, v, 1e-6)
	require.InDelta(t, 0, w, 1e-6)
}

func TestGoalControllerTurnsInPlaceForLargeHeadingError(t *testing.T) {
	c := NewGoalController(50, 1.0, math.Pi/2)
	// Goal directly behind: heading error is ~pi, far past the turn-in-
	// place gate, so the first tick must command zero forward velocity.
	c.SetGoal(se3.Pose{X: -1.0, QW: 1})

	v, w := c.Tick(se3.Identity(), 1.0)
	require.InDelta(t, 0, v, 1e-9)
	require.NotEqual(t, 0.0, w)
}

func TestGoalControllerNoGoalCommandsRest(t *testing.T) {
	c := NewGoalController(50, 1.0, math.Pi/2)
	v, w := c.Tick(se3.Identity(), 1.0)
	require.Equal(t, 0.0, v)
	require.Equal(t, 0.0, w)
}
