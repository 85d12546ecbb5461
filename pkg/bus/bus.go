// Package bus implements the per-process event bus: multicast peer
// discovery, addressed-unicast event delivery, subscription matching, a
// last-value state cache, and queued/callback delivery to in-process
// consumers.
//
// A process constructs exactly one Bus via New and threads the returned
// handle explicitly into every component that needs it (control loop,
// steering client, CLI subcommands) rather than reaching for a package-level
// singleton.
package bus

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldctl/fieldbus/pkg/log"
	"github.com/fieldctl/fieldbus/pkg/metrics"
	"github.com/fieldctl/fieldbus/pkg/timer"
	"github.com/fieldctl/fieldbus/pkg/wire"
)

// ErrNoSubscription is returned by GetLastEvent when the bus never declared
// a subscription to the requested name — the disposition is "log a warning,
// not an error" per §4.4, so callers typically log and ignore it rather than
// propagate it.
var ErrNoSubscription = fmt.Errorf("bus: no subscription declared for event name")

const (
	multicastGroup = "239.20.20.21"
	multicastPort  = 10000
	datagramMax    = 65507
	peerTTL        = 10 * time.Second
	evictInterval  = 2 * time.Second
	announceRate   = 1 * time.Second
)

// Config overrides the bus's defaults; the zero value is the production
// configuration (real multicast group, real sockets).
type Config struct {
	MulticastAddr string // host:port override, defaults to 239.20.20.21:10000
}

// Bus is the per-process event bus and discovery handle.
type Bus struct {
	name string
	cfg  Config

	mu            sync.RWMutex
	subscriptions []compiledSub
	peers         map[string]wire.Announce
	state         map[string]wire.Event

	subMu       sync.Mutex
	eventSubs   map[string]chan wire.Event
	announceSubs map[string]chan wire.Announce

	recvConn net.PacketConn // multicast announce socket (also used to send announces)
	sendConn net.PacketConn // ephemeral unicast event socket

	dispatchCh chan func()

	sessionID string
}

type compiledSub struct {
	name string
	re   *regexp.Regexp
}

// New constructs a Bus bound to ephemeral/multicast sockets but does not yet
// start announcing, listening, or dispatching — call Run for that. New is
// meant to be called exactly once per process.
func New(name string, cfg Config) (*Bus, error) {
	if name == "" {
		name = "go-ipc"
	}
	group := fmt.Sprintf("%s:%d", multicastGroup, multicastPort)
	if cfg.MulticastAddr != "" {
		group = cfg.MulticastAddr
	}

	recvConn, err := newMulticastRecvSocket(group)
	if err != nil {
		return nil, fmt.Errorf("bus: binding multicast recv socket: %w", err)
	}
	sendConn, err := newUnicastSendSocket()
	if err != nil {
		recvConn.Close()
		return nil, fmt.Errorf("bus: binding unicast send socket: %w", err)
	}

	b := &Bus{
		name:         name,
		cfg:          cfg,
		peers:        make(map[string]wire.Announce),
		state:        make(map[string]wire.Event),
		eventSubs:    make(map[string]chan wire.Event),
		announceSubs: make(map[string]chan wire.Announce),
		recvConn:     recvConn,
		sendConn:     sendConn,
		dispatchCh:   make(chan func(), 256),
		sessionID:    uuid.NewString(),
	}
	return b, nil
}

// Name returns the bus's service name, as announced to peers.
func (b *Bus) Name() string { return b.name }

// Dispatch schedules fn to run on the bus's single dispatch goroutine,
// serialized with every other dispatched closure (ingress parsing,
// discovery housekeeping, and any Periodic constructed with this Dispatch
// as its runner — e.g. a control loop's tick). It implements
// timer.Dispatch.
func (b *Bus) Dispatch(fn func()) {
	select {
	case b.dispatchCh <- fn:
	default:
		// The dispatch queue is saturated; drop rather than block the
		// producer (a network reader or timer goroutine) indefinitely.
		log.WithComponent("bus").Warn().Str("bus", b.name).Msg("dispatch queue full, dropping work item")
	}
}

// Run starts the dispatch loop, discovery, and unicast receiver, and blocks
// until ctx is cancelled, at which point it closes both sockets.
func (b *Bus) Run(ctx context.Context) error {
	logger := log.WithComponent("bus").With().Str("bus", b.name).Logger()
	logger.Info().Str("session_id", b.sessionID).Msg("starting event bus")

	go b.runAnnounceReceiver(ctx)
	go b.runUnicastReceiver(ctx)

	announceTimer := timer.New(announceRate, "announce", func(n int) { b.announceService() }, b.Dispatch)
	evictTimer := timer.New(evictInterval, "evict", func(n int) { b.evictStalePeers() }, b.Dispatch)
	go announceTimer.Start(ctx)
	go evictTimer.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			b.recvConn.Close()
			b.sendConn.Close()
			logger.Info().Msg("event bus stopped")
			return nil
		case fn := <-b.dispatchCh:
			fn()
		}
	}
}

// AddSubscriptions appends regex-compiled name patterns to this bus's own
// subscription set; they are included in the next announce.
func (b *Bus) AddSubscriptions(names []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		b.subscriptions = append(b.subscriptions, compiledSub{name: name, re: compilePattern(name)})
	}
}

// Send updates the local state cache unconditionally, then unicasts the
// event to every peer whose declared subscriptions match event.Name. An
// empty recipient set produces zero wire traffic.
func (b *Bus) Send(e wire.Event) {
	if e.SendStamp.IsZero() {
		e.SendStamp = time.Now()
	}

	b.mu.Lock()
	b.state[e.Name] = e
	recipients := b.recipientsLocked(e.Name)
	b.mu.Unlock()

	if len(recipients) == 0 {
		return
	}
	buf := e.Marshal()
	if len(buf) > datagramMax {
		log.WithComponent("bus").Error().Str("event_name", e.Name).Int("size", len(buf)).Msg("event payload exceeds max datagram size, dropping")
		metrics.DatagramsDropped.WithLabelValues("oversize").Inc()
		return
	}
	for _, peer := range recipients {
		addr := &net.UDPAddr{IP: net.ParseIP(peer.Host), Port: int(peer.Port)}
		if _, err := b.sendConn.WriteTo(buf, addr); err != nil {
			log.WithComponent("bus").Warn().Err(err).Str("peer", peer.Service).Msg("unicast send failed")
			metrics.DatagramsDropped.WithLabelValues("send_error").Inc()
			continue
		}
		metrics.EventsSent.WithLabelValues(e.Name).Inc()
	}
}

// recipientsLocked must be called with b.mu held.
func (b *Bus) recipientsLocked(name string) []wire.Announce {
	var out []wire.Announce
	for _, peer := range b.peers {
		for _, sub := range peer.Subscriptions {
			if compilePattern(sub.Name).MatchString(name) {
				out = append(out, peer)
				break
			}
		}
	}
	return out
}

// GetLastEvent returns the most recently observed event for name, whether
// sent or received. It returns ErrNoSubscription (log-and-continue, not a
// hard error) if this bus never declared a subscription to name.
func (b *Bus) GetLastEvent(name string) (wire.Event, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribed := false
	for _, s := range b.subscriptions {
		if s.re.MatchString(name) {
			subscribed = true
			break
		}
	}
	if !subscribed {
		return wire.Event{}, false, ErrNoSubscription
	}
	e, ok := b.state[name]
	return e, ok, nil
}

// Peers returns a snapshot of the current peer table.
func (b *Bus) Peers() []wire.Announce {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]wire.Announce, 0, len(b.peers))
	for _, p := range b.peers {
		out = append(out, p)
	}
	return out
}

var patternCache sync.Map // string -> *regexp.Regexp

func compilePattern(s string) *regexp.Regexp {
	if v, ok := patternCache.Load(s); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(s)
	if err != nil {
		// An unparseable subscription pattern matches nothing rather than
		// panicking the bus.
		re = regexp.MustCompile(`$^`)
		log.WithComponent("bus").Error().Err(err).Str("pattern", s).Msg("invalid subscription pattern, treating as unmatchable")
	}
	patternCache.Store(s, re)
	return re
}
