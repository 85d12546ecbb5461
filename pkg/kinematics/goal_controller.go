package kinematics

import (
	"math"

	"github.com/fieldctl/fieldbus/pkg/se3"
)

const (
	// kOmega and kV are the proportional gains driving heading error and
	// distance-to-goal into a target angular/linear velocity.
	kOmega = 5.0
	kV     = 0.25

	// goalReachedRadius is how close the translation to a goal must get
	// before it is considered reached and cleared.
	goalReachedRadius = 0.05

	// turnInPlaceGate is the heading-error threshold (radians) a freshly
	// set goal must be faced within before forward velocity is allowed;
	// carried forward from the original's new_goal gate.
	turnInPlaceGate = math.Pi / 64
)

// GoalController servo-drives a differential-drive chassis toward a goal
// pose expressed in the same frame as the odometry pose it is fed each
// tick, producing an accel-limited (v, ω) pair.
type GoalController struct {
	rateHz float64
	vAcc   float64
	wAcc   float64
	vMax   float64
	wMax   float64

	v, w float64

	goal       *se3.Pose
	facingGoal bool // cleared by SetGoal, latched true once the turn-in-place gate releases
}

// NewGoalController constructs a controller ticking at rateHz with the
// given velocity caps.
func NewGoalController(rateHz, vMax, wMax float64) *GoalController {
	return &GoalController{
		rateHz: rateHz,
		vAcc:   2.0 / rateHz,
		wAcc:   (math.Pi / 2) / rateHz,
		vMax:   vMax,
		wMax:   wMax,
	}
}

// SetGoal assigns a new goal pose and resets the turn-in-place gate.
func (c *GoalController) SetGoal(goal se3.Pose) {
	c.goal = &goal
	c.facingGoal = false
}

// ClearGoal removes any active goal; the next Tick commands a stop.
func (c *GoalController) ClearGoal() {
	c.goal = nil
}

// HasGoal reports whether a goal is currently active.
func (c *GoalController) HasGoal() bool { return c.goal != nil }

// Tick advances the controller by one period given the current odometry
// pose and returns the commanded (v, ω) for this tick. maxV caps the
// linear velocity in addition to the controller's own vMax, letting the
// caller (the SERVO steering command) further restrict speed per tick.
func (c *GoalController) Tick(current se3.Pose, maxV float64) (v, w float64) {
	vDes, wDes := 0.0, 0.0

	if c.goal != nil {
		toGoal := current.Inverse().Compose(*c.goal)
		dist := toGoal.TranslationNorm()
		if dist < goalReachedRadius {
			c.goal = nil
		} else {
			headingError := math.Atan2(toGoal.Y, toGoal.X)
			wDes = kOmega * headingError

			if !c.facingGoal {
				if math.Abs(headingError) > turnInPlaceGate {
					vDes = 0
				} else {
					c.facingGoal = true
					vDes = kV * dist
				}
			} else {
				vDes = kV * dist
			}

			speedCap := math.Min(c.vMax, maxV)
			vDes = clip(vDes, -speedCap, speedCap)
			wDes = clip(wDes, -c.wMax, c.wMax)
		}
	}

	c.v += clip(vDes-c.v, -c.vAcc, c.vAcc)
	c.w += clip(wDes-c.w, -c.wAcc, c.wAcc)
	c.v = clip(c.v, -c.vMax, c.vMax)
	c.w = clip(c.w, -c.wMax, c.wMax)
	return c.v, c.w
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
