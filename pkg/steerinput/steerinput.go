// Package steerinput implements a simulated steering-intent publisher: the
// same accel-limited slew state machine the original's joystick-driven
// steering senders use, sourced from an injected axis/button reader instead
// of real joystick hardware, so it can run under test and from a CLI
// subcommand without a physical controller attached.
package steerinput

import (
	"math"

	"github.com/fieldctl/fieldbus/pkg/wire"
)

// Inputs abstracts the handful of named axes and buttons a steering sender
// reads each tick. Axis values are expected in [-1, 1]; Button reports a
// momentary press state. A real joystick driver and a scripted/test source
// both implement this the same way: as plain functions.
type Inputs struct {
	Axis   func(name string) float64
	Button func(name string) bool
}

func (in Inputs) axis(name string) float64 {
	if in.Axis == nil {
		return 0
	}
	return in.Axis(name)
}

func (in Inputs) button(name string) bool {
	if in.Button == nil {
		return false
	}
	return in.Button(name)
}

// base holds the accel-limited slew state shared by every steering-intent
// generator: velocity and angular velocity are walked toward a target by at
// most vAcc/wAcc per tick, then clamped to vMax/wMax.
type base struct {
	rateHz float64
	v, w   float64
	vAcc   float64
	wAcc   float64
	vMax   float64
	wMax   float64
	gamma  float64

	command wire.SteeringCommand
}

func newBase(rateHz float64, mode wire.SteeringMode) base {
	b := base{
		rateHz: rateHz,
		vAcc:   2.0 / rateHz,
		vMax:   2.0,
		wAcc:   (2 * math.Pi) / rateHz,
		wMax:   math.Pi / 2,
		gamma:  2.5,
	}
	b.command.Mode = mode
	b.stop()
	return b
}

func (b *base) stop() {
	b.v = 0
	b.w = 0
	b.command.Deadman = 0.0
	b.command.Brake = 1.0
	b.command.Velocity = 0.0
	b.command.AngularVelocity = 0.0
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (b *base) updateVW(targetV, targetW float64) {
	b.v += clip(targetV-b.v, -b.vAcc, b.vAcc)
	b.v = clip(b.v, -b.vMax, b.vMax)

	b.w += clip(targetW-b.w, -b.wAcc, b.wAcc)
	b.w = clip(b.w, -b.wMax, b.wMax)

	b.command.Velocity = b.v
	b.command.AngularVelocity = b.w
}

// ManualSteering converts raw "gas"/"steer" axes and a "deadman" button into
// a slew-limited steering command, gamma-shaping the axis response and
// smoothing it with an exponential moving average the way a human driver's
// stick input gets smoothed before being trusted.
type ManualSteering struct {
	base
	targetGas, targetSteering float64
	smoothing                 float64 // EMA weight given to the newest sample
}

// NewManualSteering constructs a manual steering generator ticking at
// rateHz.
func NewManualSteering(rateHz float64) *ManualSteering {
	return &ManualSteering{base: newBase(rateHz, wire.ModeJoystickManual), smoothing: 0.5}
}

func (m *ManualSteering) Stop() {
	m.base.stop()
	m.targetGas = 0
	m.targetSteering = 0
}

// Update reads gas/steer axes and the deadman button and returns the
// command for this tick. With the deadman released, it hard-stops.
func (m *ManualSteering) Update(in Inputs) wire.SteeringCommand {
	if !in.button("deadman") {
		m.Stop()
		return m.command
	}

	m.command.Deadman = 1.0
	m.command.Brake = 0.0

	gas := clip(-in.axis("gas"), -1.0, 1.0)
	gas = math.Copysign(math.Pow(math.Abs(gas), m.gamma), gas)
	m.targetGas = (1-m.smoothing)*m.targetGas + m.smoothing*gas

	steer := clip(-in.axis("steer"), -1.0, 1.0)
	steer = math.Copysign(math.Pow(math.Abs(steer), m.gamma), steer)
	m.targetSteering = (1-m.smoothing)*m.targetSteering + m.smoothing*steer

	m.updateVW(m.vMax*m.targetGas, m.wMax*m.targetSteering)
	return m.command
}

// CruiseControlSteering holds a target speed and angular velocity that dpad
// up/down nudges by a fixed delta and dpad left/right overrides for as long
// as held, resetting to zero angular velocity once released — a nudge, not
// a persistent turn rate.
type CruiseControlSteering struct {
	base
	deltaVel      float64
	deltaAngular  float64
	targetSpeed   float64
	targetAngular float64
}

// NewCruiseControlSteering constructs a cruise-control steering generator
// ticking at rateHz.
func NewCruiseControlSteering(rateHz float64) *CruiseControlSteering {
	return &CruiseControlSteering{
		base:         newBase(rateHz, wire.ModeJoystickCruiseControl),
		deltaVel:     0.25 / rateHz,
		deltaAngular: math.Pi / 6,
	}
}

func (c *CruiseControlSteering) Stop() {
	c.targetSpeed = 0
	c.targetAngular = 0
	c.base.stop()
}

// AxisActive reports whether the dpad axes that drive cruise control are
// currently being touched, used by the sender to decide whether to switch
// into cruise-control mode this tick.
func (c *CruiseControlSteering) AxisActive(in Inputs) bool {
	return in.axis("hat0y") != 0 || in.axis("hat0x") != 0
}

func (c *CruiseControlSteering) Update(in Inputs) wire.SteeringCommand {
	c.command.Brake = 0.0
	c.command.Deadman = 0.0

	if hatY := in.axis("hat0y"); hatY != 0 {
		c.targetAngular = 0.0
		c.targetSpeed = clip(c.targetSpeed-hatY*c.deltaVel, -c.vMax, c.vMax)
	}

	if hatX := in.axis("hat0x"); hatX != 0 {
		c.targetAngular = -hatX * c.deltaAngular
	} else {
		c.targetAngular = 0.0
	}

	c.updateVW(c.targetSpeed, c.targetAngular)
	return c.command
}
