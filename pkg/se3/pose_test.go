package se3

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpStraightLine(t *testing.T) {
	p := Exp(1.0, 0)
	require.InDelta(t, 1.0, p.X, 1e-9)
	require.InDelta(t, 0.0, p.Y, 1e-9)
	require.InDelta(t, 1.0, p.QW, 1e-9)
}

func TestExpArcThenCompose(t *testing.T) {
	delta := Exp(1.0, math.Pi/2)
	odom := Identity().Compose(delta)
	assert.InDelta(t, delta.X, odom.X, 1e-9)
	assert.InDelta(t, delta.Y, odom.Y, 1e-9)
}

func TestInverseUndoesCompose(t *testing.T) {
	a := Exp(1.0, 0.3)
	b := Exp(0.5, -0.1)
	composed := a.Compose(b)
	recovered := a.Inverse().Compose(composed)
	assert.InDelta(t, b.X, recovered.X, 1e-6)
	assert.InDelta(t, b.Y, recovered.Y, 1e-6)
}

func TestTranslationNorm(t *testing.T) {
	p := Pose{X: 3, Y: 4, Z: 0, QW: 1}
	assert.InDelta(t, 5.0, p.TranslationNorm(), 1e-9)
}
