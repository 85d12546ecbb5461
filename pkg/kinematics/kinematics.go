// Package kinematics implements differential-drive wheel/unicycle
// conversions and the servo-to-goal controller that drives the control
// loop's SERVO steering mode.
package kinematics

import (
	"github.com/fieldctl/fieldbus/pkg/se3"
)

// Differential holds the two physical parameters a differential-drive
// chassis needs to convert between wheel speeds and unicycle motion.
type Differential struct {
	WheelRadius   float64 // r, meters
	WheelBaseline float64 // b, meters between the two drive wheels
}

// UnicycleToWheel converts a commanded linear/angular velocity pair into
// left/right wheel angular velocities (rad/s).
func (d Differential) UnicycleToWheel(v, w float64) (left, right float64) {
	left = (2*v - w*d.WheelBaseline) / (2 * d.WheelRadius)
	right = (2*v + w*d.WheelBaseline) / (2 * d.WheelRadius)
	return left, right
}

// WheelToUnicycle converts left/right wheel angular velocities (rad/s)
// into a linear/angular velocity pair.
func (d Differential) WheelToUnicycle(left, right float64) (v, w float64) {
	v = (d.WheelRadius / 2) * (left + right)
	w = (d.WheelRadius / d.WheelBaseline) * (right - left)
	return v, w
}

// PoseDelta returns the SE(3) displacement a dt-second interval at wheel
// speeds (left, right) produces, to be composed onto a running odometry
// pose.
func (d Differential) PoseDelta(left, right, dt float64) se3.Pose {
	v, w := d.WheelToUnicycle(left, right)
	return se3.Exp(v*dt, w*dt)
}
