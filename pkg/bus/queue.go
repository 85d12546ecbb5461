package bus

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldctl/fieldbus/pkg/log"
	"github.com/fieldctl/fieldbus/pkg/wire"
)

const subscriberQueueDepth = 64

// EventQueue is a scoped acquisition of a bounded channel that receives
// every ingress event until Release is called. The Go idiom for the
// original's `with EventBusQueue(bus) as q:` context manager is to defer
// the queue's Release method immediately after acquiring the queue.
type EventQueue struct {
	C chan wire.Event

	bus *Bus
	id  string
}

// Release detaches the queue from the bus's subscriber set. It is safe to
// call more than once.
func (q *EventQueue) Release() {
	q.bus.subMu.Lock()
	delete(q.bus.eventSubs, q.id)
	q.bus.subMu.Unlock()
}

// EventQueue acquires a new bounded event queue.
func (b *Bus) EventQueue() *EventQueue {
	id := uuid.NewString()
	ch := make(chan wire.Event, subscriberQueueDepth)
	b.subMu.Lock()
	b.eventSubs[id] = ch
	b.subMu.Unlock()
	return &EventQueue{C: ch, bus: b, id: id}
}

// AnnounceQueue is the announcement-stream analogue of EventQueue.
type AnnounceQueue struct {
	C chan wire.Announce

	bus *Bus
	id  string
}

func (q *AnnounceQueue) Release() {
	q.bus.subMu.Lock()
	delete(q.bus.announceSubs, q.id)
	q.bus.subMu.Unlock()
}

func (b *Bus) AnnounceQueue() *AnnounceQueue {
	id := uuid.NewString()
	ch := make(chan wire.Announce, subscriberQueueDepth)
	b.subMu.Lock()
	b.announceSubs[id] = ch
	b.subMu.Unlock()
	return &AnnounceQueue{C: ch, bus: b, id: id}
}

// AddEventCallback acquires an EventQueue and spawns a goroutine that reads
// it, but invokes fn by handing it to Dispatch rather than calling it
// directly: per §5, all bus-state mutation and callback invocation happen
// on the single dispatch goroutine, and a callback like the control loop's
// goal ingestion mutates state the dispatch-goroutine-driven control tick
// also touches. Routing through Dispatch is what the original's single
// asyncio event loop gives for free; a bare reader goroutine would not.
// This is the Go realization of the original's `add_event_callback`, which
// schedules an async task consuming a queue.
func (b *Bus) AddEventCallback(ctx context.Context, fn func(wire.Event)) {
	q := b.EventQueue()
	go func() {
		defer q.Release()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-q.C:
				b.Dispatch(func() { fn(e) })
			}
		}
	}()
}

// AddAnnounceCallback is the announcement-stream analogue of
// AddEventCallback, with the same Dispatch-serialized invocation.
func (b *Bus) AddAnnounceCallback(ctx context.Context, fn func(wire.Announce)) {
	q := b.AnnounceQueue()
	go func() {
		defer q.Release()
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-q.C:
				b.Dispatch(func() { fn(a) })
			}
		}
	}()
}

// LogState logs the current state cache, one line per event, mirroring the
// original's diagnostic log_state helper.
func (b *Bus) LogState() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	logger := log.WithComponent("bus").With().Str("bus", b.name).Logger()
	for name, e := range b.state {
		logger.Info().Str("event_name", name).Time("recv_stamp", e.RecvStamp).Msg("cached state")
	}
}
