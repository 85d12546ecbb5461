// Package se3 implements the subset of SE(3) rigid-body transforms the
// kinematics and control loop need: composition, inverse, the exponential
// map of a planar twist, and translation norm.
package se3

import "math"

// Pose is a rigid transform: a translation plus a unit quaternion in xyzw
// ordering, matching the wire schema in pkg/wire.
type Pose struct {
	X, Y, Z        float64
	QX, QY, QZ, QW float64
}

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{QW: 1}
}

// Translation returns the translation component as (x, y, z).
func (p Pose) Translation() (float64, float64, float64) {
	return p.X, p.Y, p.Z
}

// TranslationNorm returns the 2-norm of the translation component.
func (p Pose) TranslationNorm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

func quatMul(a, b Pose) (qx, qy, qz, qw float64) {
	qw = a.QW*b.QW - a.QX*b.QX - a.QY*b.QY - a.QZ*b.QZ
	qx = a.QW*b.QX + a.QX*b.QW + a.QY*b.QZ - a.QZ*b.QY
	qy = a.QW*b.QY - a.QX*b.QZ + a.QY*b.QW + a.QZ*b.QX
	qz = a.QW*b.QZ + a.QX*b.QY - a.QY*b.QX + a.QZ*b.QW
	return
}

// rotate applies p's rotation to the vector (x, y, z).
func (p Pose) rotate(x, y, z float64) (float64, float64, float64) {
	// v' = q * v * q^-1, v as a pure quaternion.
	vx, vy, vz, vw := x, y, z, 0.0
	v := Pose{QX: vx, QY: vy, QZ: vz, QW: vw}
	qx, qy, qz, qw := quatMul(p, v)
	rx, ry, rz, _ := quatMul(Pose{QX: qx, QY: qy, QZ: qz, QW: qw}, p.conjugate())
	return rx, ry, rz
}

func (p Pose) conjugate() Pose {
	return Pose{QX: -p.QX, QY: -p.QY, QZ: -p.QZ, QW: p.QW}
}

// Compose returns a.Compose(b), i.e. b expressed in a's frame then
// transformed by a: matches the original's `a.dot(b)`.
func (a Pose) Compose(b Pose) Pose {
	rx, ry, rz := a.rotate(b.X, b.Y, b.Z)
	qx, qy, qz, qw := quatMul(a, b)
	n := math.Sqrt(qx*qx + qy*qy + qz*qz + qw*qw)
	if n > 0 {
		qx, qy, qz, qw = qx/n, qy/n, qz/n, qw/n
	}
	return Pose{
		X: a.X + rx, Y: a.Y + ry, Z: a.Z + rz,
		QX: qx, QY: qy, QZ: qz, QW: qw,
	}
}

// Inverse returns the inverse transform.
func (p Pose) Inverse() Pose {
	conj := p.conjugate()
	nx, ny, nz := conj.rotate(-p.X, -p.Y, -p.Z)
	return Pose{X: nx, Y: ny, Z: nz, QX: conj.QX, QY: conj.QY, QZ: conj.QZ, QW: conj.QW}
}

// Exp computes the exponential map of a planar twist [vx, vy, vz, wx, wy, wz]
// restricted to the case the kinematics layer produces: translation along the
// body x-axis and rotation about the body z-axis, i.e. Exp([v*dt,0,0,0,0,w*dt]).
// This mirrors liegroups.SE3.exp's behavior for that specific twist shape.
func Exp(vx, wz float64) Pose {
	if wz == 0 {
		return Pose{X: vx, QW: 1}
	}
	// Arc of a unicycle moving at body-x velocity v while rotating at wz:
	// integrate the body velocity over the same interval the twist encodes.
	// For a twist [v,0,0,0,0,w] over "unit time" (v and w already scaled by dt
	// by the caller), the closed-form displacement is a circular arc of
	// radius v/w, turned through angle w.
	radius := vx / wz
	dx := radius * math.Sin(wz)
	dy := radius * (1 - math.Cos(wz))
	half := wz / 2
	return Pose{X: dx, Y: dy, QZ: math.Sin(half), QW: math.Cos(half)}
}
