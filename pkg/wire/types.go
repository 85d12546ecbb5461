package wire

import (
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Payload is a dynamically-typed event body: a type URL identifying the
// schema of Value's contents, and the opaque serialized bytes themselves.
// Components that only forward events (never interpret them) treat Payload
// as opaque. There is no decode registry: components that need to act on a
// payload call the matching Unmarshal* function directly, and TypeURL is
// not checked before decoding.
type Payload struct {
	TypeURL string
	Value   []byte
}

// Subscription is a single regex name pattern a peer declares interest in.
type Subscription struct {
	Name string
}

// Announce is a peer's self-description, broadcast on the discovery
// multicast group every second.
type Announce struct {
	Service       string
	Host          string
	Port          uint16
	SendStamp     time.Time
	RecvStamp     time.Time
	Subscriptions []Subscription
}

// Event is an addressable, name-routed message.
type Event struct {
	Name      string
	SendStamp time.Time
	RecvStamp time.Time
	Data      Payload
}

// Pose is the wire form of an SE(3) transform, quaternion in xyzw order.
type Pose struct {
	X, Y, Z        float64
	QX, QY, QZ, QW float64
}

// NamedSE3Pose names the two frames a Pose relates.
type NamedSE3Pose struct {
	FrameA string
	FrameB string
	APoseB Pose
}

// SteeringMode enumerates the control loop's steering sources.
type SteeringMode int32

const (
	ModeUnspecified           SteeringMode = 0
	ModeJoystickManual        SteeringMode = 1
	ModeJoystickCruiseControl SteeringMode = 2
	ModeServo                 SteeringMode = 3
)

// SteeringCommand is the payload of the well-known "steering" event.
type SteeringCommand struct {
	Mode            SteeringMode
	Deadman         float64
	Brake           float64
	Velocity        float64
	AngularVelocity float64
}

// TractorState is the payload of the well-known "tractor_state" event.
type TractorState struct {
	Stamp                            time.Time
	WheelVelocityRadsLeft            float64
	WheelVelocityRadsRight           float64
	AverageUpdateRateLeftMotor       float64
	AverageUpdateRateRightMotor      float64
	CommandedBrakeCurrent            float64
	CommandedWheelVelocityRadsLeft   float64
	CommandedWheelVelocityRadsRight  float64
	TargetUnicycleVelocity           float64
	TargetUnicycleAngularVelocity    float64
	Dt                               float64
	AbsDistanceTraveled              float64
	OdometryPoseBase                 NamedSE3Pose
}

func appendDouble(b []byte, field protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	return appendFixed64(b, field, math.Float64bits(v))
}

func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// --- Subscription ---

func (s Subscription) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, s.Name)
	return b
}

func UnmarshalSubscription(buf []byte) (Subscription, error) {
	var s Subscription
	err := fieldIterator(buf, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeString(typ, b)
			if err != nil {
				return nil, err
			}
			s.Name = v
			return rest, nil
		default:
			return skipField(typ, b)
		}
	})
	return s, err
}

// --- Announce ---

func (a Announce) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, a.Service)
	b = appendString(b, 2, a.Host)
	b = appendVarint(b, 3, uint64(a.Port))
	b = appendVarint(b, 4, uint64(timeToNanos(a.SendStamp)))
	b = appendVarint(b, 5, uint64(timeToNanos(a.RecvStamp)))
	for _, sub := range a.Subscriptions {
		b = appendSubmessage(b, 6, sub.Marshal())
	}
	return b
}

func UnmarshalAnnounce(buf []byte) (Announce, error) {
	var a Announce
	err := fieldIterator(buf, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeString(typ, b)
			if err != nil {
				return nil, err
			}
			a.Service = v
			return rest, nil
		case 2:
			v, rest, err := consumeString(typ, b)
			if err != nil {
				return nil, err
			}
			a.Host = v
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(typ, b)
			if err != nil {
				return nil, err
			}
			a.Port = uint16(v)
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(typ, b)
			if err != nil {
				return nil, err
			}
			a.SendStamp = nanosToTime(int64(v))
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(typ, b)
			if err != nil {
				return nil, err
			}
			a.RecvStamp = nanosToTime(int64(v))
			return rest, nil
		case 6:
			raw, rest, err := consumeBytes(typ, b)
			if err != nil {
				return nil, err
			}
			sub, err := UnmarshalSubscription(raw)
			if err != nil {
				return nil, err
			}
			a.Subscriptions = append(a.Subscriptions, sub)
			return rest, nil
		default:
			return skipField(typ, b)
		}
	})
	return a, err
}

// --- Payload ---

func (p Payload) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, p.TypeURL)
	b = appendBytes(b, 2, p.Value)
	return b
}

func UnmarshalPayload(buf []byte) (Payload, error) {
	var p Payload
	err := fieldIterator(buf, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeString(typ, b)
			if err != nil {
				return nil, err
			}
			p.TypeURL = v
			return rest, nil
		case 2:
			v, rest, err := consumeBytes(typ, b)
			if err != nil {
				return nil, err
			}
			p.Value = v
			return rest, nil
		default:
			return skipField(typ, b)
		}
	})
	return p, err
}

// --- Event ---

func (e Event) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, e.Name)
	b = appendVarint(b, 2, uint64(timeToNanos(e.SendStamp)))
	b = appendVarint(b, 3, uint64(timeToNanos(e.RecvStamp)))
	b = appendSubmessage(b, 4, e.Data.Marshal())
	return b
}

func UnmarshalEvent(buf []byte) (Event, error) {
	var e Event
	err := fieldIterator(buf, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeString(typ, b)
			if err != nil {
				return nil, err
			}
			e.Name = v
			return rest, nil
		case 2:
			v, rest, err := consumeVarint(typ, b)
			if err != nil {
				return nil, err
			}
			e.SendStamp = nanosToTime(int64(v))
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(typ, b)
			if err != nil {
				return nil, err
			}
			e.RecvStamp = nanosToTime(int64(v))
			return rest, nil
		case 4:
			raw, rest, err := consumeBytes(typ, b)
			if err != nil {
				return nil, err
			}
			p, err := UnmarshalPayload(raw)
			if err != nil {
				return nil, err
			}
			e.Data = p
			return rest, nil
		default:
			return skipField(typ, b)
		}
	})
	return e, err
}

// --- Pose / NamedSE3Pose ---

func (p Pose) Marshal() []byte {
	var b []byte
	b = appendDouble(b, 1, p.X)
	b = appendDouble(b, 2, p.Y)
	b = appendDouble(b, 3, p.Z)
	b = appendDouble(b, 4, p.QX)
	b = appendDouble(b, 5, p.QY)
	b = appendDouble(b, 6, p.QZ)
	b = appendDouble(b, 7, p.QW)
	return b
}

func UnmarshalPose(buf []byte) (Pose, error) {
	var p Pose
	err := fieldIterator(buf, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		v, rest, err := consumeFixed64(typ, b)
		if err != nil {
			return nil, err
		}
		f := math.Float64frombits(v)
		switch num {
		case 1:
			p.X = f
		case 2:
			p.Y = f
		case 3:
			p.Z = f
		case 4:
			p.QX = f
		case 5:
			p.QY = f
		case 6:
			p.QZ = f
		case 7:
			p.QW = f
		}
		return rest, nil
	})
	return p, err
}

func (n NamedSE3Pose) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, n.FrameA)
	b = appendString(b, 2, n.FrameB)
	b = appendSubmessage(b, 3, n.APoseB.Marshal())
	return b
}

func UnmarshalNamedSE3Pose(buf []byte) (NamedSE3Pose, error) {
	var n NamedSE3Pose
	err := fieldIterator(buf, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeString(typ, b)
			if err != nil {
				return nil, err
			}
			n.FrameA = v
			return rest, nil
		case 2:
			v, rest, err := consumeString(typ, b)
			if err != nil {
				return nil, err
			}
			n.FrameB = v
			return rest, nil
		case 3:
			raw, rest, err := consumeBytes(typ, b)
			if err != nil {
				return nil, err
			}
			pose, err := UnmarshalPose(raw)
			if err != nil {
				return nil, err
			}
			n.APoseB = pose
			return rest, nil
		default:
			return skipField(typ, b)
		}
	})
	return n, err
}

// --- SteeringCommand ---

func (c SteeringCommand) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(c.Mode))
	b = appendDouble(b, 2, c.Deadman)
	b = appendDouble(b, 3, c.Brake)
	b = appendDouble(b, 4, c.Velocity)
	b = appendDouble(b, 5, c.AngularVelocity)
	return b
}

func UnmarshalSteeringCommand(buf []byte) (SteeringCommand, error) {
	var c SteeringCommand
	err := fieldIterator(buf, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(typ, b)
			if err != nil {
				return nil, err
			}
			c.Mode = SteeringMode(v)
			return rest, nil
		case 2, 3, 4, 5:
			v, rest, err := consumeFixed64(typ, b)
			if err != nil {
				return nil, err
			}
			f := math.Float64frombits(v)
			switch num {
			case 2:
				c.Deadman = f
			case 3:
				c.Brake = f
			case 4:
				c.Velocity = f
			case 5:
				c.AngularVelocity = f
			}
			return rest, nil
		default:
			return skipField(typ, b)
		}
	})
	return c, err
}

// --- TractorState ---

func (s TractorState) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(timeToNanos(s.Stamp)))
	b = appendDouble(b, 2, s.WheelVelocityRadsLeft)
	b = appendDouble(b, 3, s.WheelVelocityRadsRight)
	b = appendDouble(b, 4, s.AverageUpdateRateLeftMotor)
	b = appendDouble(b, 5, s.AverageUpdateRateRightMotor)
	b = appendDouble(b, 6, s.CommandedBrakeCurrent)
	b = appendDouble(b, 7, s.CommandedWheelVelocityRadsLeft)
	b = appendDouble(b, 8, s.CommandedWheelVelocityRadsRight)
	b = appendDouble(b, 9, s.TargetUnicycleVelocity)
	b = appendDouble(b, 10, s.TargetUnicycleAngularVelocity)
	b = appendDouble(b, 11, s.Dt)
	b = appendDouble(b, 12, s.AbsDistanceTraveled)
	b = appendSubmessage(b, 13, s.OdometryPoseBase.Marshal())
	return b
}

func UnmarshalTractorState(buf []byte) (TractorState, error) {
	var s TractorState
	err := fieldIterator(buf, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num == 1 {
			v, rest, err := consumeVarint(typ, b)
			if err != nil {
				return nil, err
			}
			s.Stamp = nanosToTime(int64(v))
			return rest, nil
		}
		if num == 13 {
			raw, rest, err := consumeBytes(typ, b)
			if err != nil {
				return nil, err
			}
			pose, err := UnmarshalNamedSE3Pose(raw)
			if err != nil {
				return nil, err
			}
			s.OdometryPoseBase = pose
			return rest, nil
		}
		if num >= 2 && num <= 12 {
			v, rest, err := consumeFixed64(typ, b)
			if err != nil {
				return nil, err
			}
			f := math.Float64frombits(v)
			switch num {
			case 2:
				s.WheelVelocityRadsLeft = f
			case 3:
				s.WheelVelocityRadsRight = f
			case 4:
				s.AverageUpdateRateLeftMotor = f
			case 5:
				s.AverageUpdateRateRightMotor = f
			case 6:
				s.CommandedBrakeCurrent = f
			case 7:
				s.CommandedWheelVelocityRadsLeft = f
			case 8:
				s.CommandedWheelVelocityRadsRight = f
			case 9:
				s.TargetUnicycleVelocity = f
			case 10:
				s.TargetUnicycleAngularVelocity = f
			case 11:
				s.Dt = f
			case 12:
				s.AbsDistanceTraveled = f
			}
			return rest, nil
		}
		return skipField(typ, b)
	})
	return s, err
}
