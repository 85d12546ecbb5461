package bus

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/fieldctl/fieldbus/pkg/log"
	"github.com/fieldctl/fieldbus/pkg/metrics"
	"github.com/fieldctl/fieldbus/pkg/wire"
)

// newMulticastRecvSocket binds the administratively-scoped discovery group
// with SO_REUSEADDR set (so multiple local services can all join the same
// group) and joins it via IP_ADD_MEMBERSHIP/INADDR_ANY.
func newMulticastRecvSocket(group string) (net.PacketConn, error) {
	_, portStr, err := net.SplitHostPort(group)
	if err != nil {
		return nil, fmt.Errorf("parsing multicast group %q: %w", group, err)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", "0.0.0.0:"+portStr)
	if err != nil {
		return nil, err
	}

	groupAddr, _, err := net.SplitHostPort(group)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(nil, &net.UDPAddr{IP: net.ParseIP(groupAddr)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("joining multicast group %s: %w", groupAddr, err)
	}
	return conn, nil
}

// newUnicastSendSocket binds an ephemeral port with multicast TTL 0 so
// anything sent from it (including announces addressed to the multicast
// group) never leaves localhost. This same socket receives unicast Event
// traffic addressed to the bus's announced port.
func newUnicastSendSocket() (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, err
	}
	udpConn, ok := conn.(*net.UDPConn)
	if ok {
		p := ipv4.NewPacketConn(udpConn)
		_ = p.SetMulticastTTL(0)
	}
	return conn, nil
}

func (b *Bus) unicastPort() int {
	if a, ok := b.sendConn.LocalAddr().(*net.UDPAddr); ok {
		return a.Port
	}
	return 0
}

// announceService broadcasts this bus's self-description to the discovery
// multicast group. Invoked once per second by Run's announce Periodic.
func (b *Bus) announceService() {
	b.mu.RLock()
	subs := make([]wire.Subscription, len(b.subscriptions))
	for i, s := range b.subscriptions {
		subs[i] = wire.Subscription{Name: s.name}
	}
	b.mu.RUnlock()

	announce := wire.Announce{
		Service:       b.name,
		Host:          "127.0.0.1",
		Port:          uint16(b.unicastPort()),
		SendStamp:     time.Now(),
		Subscriptions: subs,
	}
	buf := announce.Marshal()
	dst := &net.UDPAddr{IP: net.ParseIP(multicastGroup), Port: multicastPort}
	if b.cfg.MulticastAddr != "" {
		if addr, err := net.ResolveUDPAddr("udp4", b.cfg.MulticastAddr); err == nil {
			dst = addr
		}
	}
	if _, err := b.sendConn.WriteTo(buf, dst); err != nil {
		log.WithComponent("bus").Warn().Err(err).Msg("failed to send announce")
	}
}

// runAnnounceReceiver reads multicast announce datagrams until ctx is
// cancelled, validating and forwarding each accepted one to the dispatch
// goroutine.
func (b *Bus) runAnnounceReceiver(ctx context.Context) {
	buf := make([]byte, datagramMax)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		b.recvConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := b.recvConn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.WithComponent("bus").Warn().Err(err).Msg("announce recv failed")
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		udpAddr, _ := addr.(*net.UDPAddr)
		b.Dispatch(func() { b.handleAnnounce(payload, udpAddr) })
	}
}

func (b *Bus) handleAnnounce(payload []byte, from *net.UDPAddr) {
	logger := log.WithComponent("bus").With().Str("bus", b.name).Logger()

	// Ignore self-announcements: our own announce goes out from the same
	// port this socket would receive datagrams destined for it on, but
	// announces are sent from sendConn, not recvConn, so self-filtering is
	// by source port matching our announced unicast port.
	if from != nil && from.Port == b.unicastPort() {
		return
	}

	announce, err := wire.UnmarshalAnnounce(payload)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping malformed announcement")
		return
	}

	if !hostIsLocal(announce.Host) {
		logger.Warn().Str("host", announce.Host).Msg("ignoring non-local announcement")
		return
	}
	if from == nil || announce.Host != "127.0.0.1" || int(announce.Port) != from.Port {
		logger.Warn().Str("peer", announce.Service).Msg("announcement does not match sender, rejecting")
		return
	}

	announce.RecvStamp = time.Now()
	key := fmt.Sprintf("%s:%d", announce.Host, announce.Port)

	b.mu.Lock()
	b.peers[key] = announce
	metrics.PeersTotal.Set(float64(len(b.peers)))
	b.mu.Unlock()

	b.subMu.Lock()
	subs := make([]chan wire.Announce, 0, len(b.announceSubs))
	for _, ch := range b.announceSubs {
		subs = append(subs, ch)
	}
	b.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- announce:
		default:
			logger.Warn().Msg("announce subscriber queue full, dropping")
		}
	}
}

// hostIsLocal reports whether a peer-declared host should be trusted as
// local. In-process peers always announce "127.0.0.1" (§3 Announcement
// invariant); this module only ever runs services on one host, so unlike
// the original's disabled getfqdn-based check (kept off there for latency
// reasons), a direct string comparison is both correct and cheap here.
func hostIsLocal(host string) bool {
	return host == "127.0.0.1" || host == "localhost"
}

// evictStalePeers drops peer-table entries whose last announcement is older
// than peerTTL. Invoked every evictInterval by Run's evict Periodic.
func (b *Bus) evictStalePeers() {
	logger := log.WithComponent("bus").With().Str("bus", b.name).Logger()
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	for key, peer := range b.peers {
		if now.Sub(peer.RecvStamp) > peerTTL {
			logger.Info().Str("peer", peer.Service).Msg("evicting stale peer")
			delete(b.peers, key)
		}
	}
	metrics.PeersTotal.Set(float64(len(b.peers)))
}
