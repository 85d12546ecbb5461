package motor

import (
	"sync"
	"time"
)

type sentFrame struct {
	cobID   uint32
	payload []byte
}

// FakeCANBus is a raw CANEndpoint double for tests and for driving
// cmd/fieldbusd without real hardware. It records every frame Send writes
// and, if Loopback is set, runs each sent frame through it to decide
// whether to synthesize a reply frame delivered back to every registered
// reader -- standing in for a real ODrive's encoder-estimate replies so the
// daemon's odometry path is exercised end to end without a CAN bus
// attached.
type FakeCANBus struct {
	mu       sync.Mutex
	sent     []sentFrame
	readers  []func(cobID uint32, payload []byte, recvStamp time.Time)
	Loopback func(cobID uint32, payload []byte) (replyCobID uint32, replyPayload []byte, ok bool)
	Now      func() time.Time
}

// NewFakeCANBus constructs a bus with no loopback behavior configured.
func NewFakeCANBus() *FakeCANBus {
	return &FakeCANBus{Now: time.Now}
}

// AddReader registers fn to receive every reply frame, in registration
// order.
func (f *FakeCANBus) AddReader(fn func(cobID uint32, payload []byte, recvStamp time.Time)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readers = append(f.readers, fn)
}

// Send records the frame and, if Loopback is set, immediately delivers
// whatever reply it produces to every registered reader.
func (f *FakeCANBus) Send(cobID uint32, payload []byte, flags uint32) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentFrame{cobID: cobID | flags, payload: append([]byte(nil), payload...)})
	loopback := f.Loopback
	readers := append([]func(uint32, []byte, time.Time){}, f.readers...)
	now := f.Now
	f.mu.Unlock()

	if loopback == nil {
		return nil
	}
	replyCobID, replyPayload, ok := loopback(cobID, payload)
	if !ok {
		return nil
	}
	recvStamp := now()
	for _, reader := range readers {
		reader(replyCobID, replyPayload, recvStamp)
	}
	return nil
}

// LastFrame returns the most recent frame sent with the given cob_id, for
// test assertions.
func (f *FakeCANBus) LastFrame(cobID uint32) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].cobID == cobID {
			return f.sent[i].payload, true
		}
	}
	return nil, false
}

// PerfectTrackingLoopback mirrors every set_input_vel command straight
// back as a get_encoder_estimates reply for the same node, simulating a
// motor that tracks its velocity command exactly -- the frame-level
// analogue of control_test.go's tickAt helper.
func PerfectTrackingLoopback(cobID uint32, payload []byte) (replyCobID uint32, replyPayload []byte, ok bool) {
	nodeID, turnsPerSecond, ok := DecodeSetVelocityCommand(cobID, payload)
	if !ok {
		return 0, nil, false
	}
	replyCobID, replyPayload = EncodeEncoderEstimate(nodeID, turnsPerSecond)
	return replyCobID, replyPayload, true
}
