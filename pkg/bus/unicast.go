package bus

import (
	"context"
	"net"
	"time"

	"github.com/fieldctl/fieldbus/pkg/log"
	"github.com/fieldctl/fieldbus/pkg/metrics"
	"github.com/fieldctl/fieldbus/pkg/wire"
)

// runUnicastReceiver reads inbound Event datagrams addressed to this bus's
// announced port until ctx is cancelled.
func (b *Bus) runUnicastReceiver(ctx context.Context) {
	buf := make([]byte, datagramMax)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		b.sendConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := b.sendConn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.WithComponent("bus").Warn().Err(err).Msg("unicast recv failed")
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		b.Dispatch(func() { b.handleEvent(payload) })
	}
}

func (b *Bus) handleEvent(payload []byte) {
	logger := log.WithComponent("bus").With().Str("bus", b.name).Logger()

	event, err := wire.UnmarshalEvent(payload)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping malformed event")
		metrics.DatagramsDropped.WithLabelValues("malformed").Inc()
		return
	}
	event.RecvStamp = time.Now()
	metrics.EventsReceived.WithLabelValues(event.Name).Inc()

	b.mu.Lock()
	b.state[event.Name] = event
	b.mu.Unlock()

	b.subMu.Lock()
	subs := make([]chan wire.Event, 0, len(b.eventSubs))
	for _, ch := range b.eventSubs {
		subs = append(subs, ch)
	}
	b.subMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			logger.Warn().Str("event_name", event.Name).Msg("event subscriber queue full, dropping newest")
			metrics.DatagramsDropped.WithLabelValues("subscriber_queue_full").Inc()
		}
	}
}
