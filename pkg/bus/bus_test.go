package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldctl/fieldbus/pkg/wire"
)

func newTestPair(t *testing.T) (a, b *Bus) {
	t.Helper()
	a, err := New("test-a", Config{})
	require.NoError(t, err)
	b, err = New("test-b", Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		a.recvConn.Close()
		a.sendConn.Close()
		b.recvConn.Close()
		b.sendConn.Close()
	})
	return a, b
}

func runBus(t *testing.T, ctx context.Context, bus *Bus) {
	t.Helper()
	go func() {
		_ = bus.Run(ctx)
	}()
}

// TestEventRoundTrip exercises S1: a subscriber on one bus receives an event
// sent by another bus after peer discovery converges.
func TestEventRoundTrip(t *testing.T) {
	a, b := newTestPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b.AddSubscriptions([]string{"^pose/tractor/base$"})
	runBus(t, ctx, a)
	runBus(t, ctx, b)

	require.Eventually(t, func() bool {
		return len(a.Peers()) > 0 && len(b.Peers()) > 0
	}, 2*time.Second, 20*time.Millisecond, "buses did not discover each other")

	a.Send(wire.Event{Name: "pose/tractor/base", Data: wire.Payload{TypeURL: "test", Value: []byte("hi")}})

	require.Eventually(t, func() bool {
		e, ok, err := b.GetLastEvent("pose/tractor/base")
		return err == nil && ok && string(e.Data.Value) == "hi"
	}, 2*time.Second, 20*time.Millisecond, "subscriber never observed the event")
}

// TestSendWithoutSubscribersProducesNoTraffic exercises S2: a bus with no
// declared subscription to an event name never receives it, even once peers
// are discovered.
func TestSendWithoutSubscribersProducesNoTraffic(t *testing.T) {
	a, b := newTestPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// b declares no subscriptions at all.
	runBus(t, ctx, a)
	runBus(t, ctx, b)

	require.Eventually(t, func() bool {
		return len(a.Peers()) > 0 && len(b.Peers()) > 0
	}, 2*time.Second, 20*time.Millisecond, "buses did not discover each other")

	a.Send(wire.Event{Name: "pose/tractor/base", Data: wire.Payload{TypeURL: "test", Value: []byte("hi")}})

	time.Sleep(200 * time.Millisecond)
	_, ok, err := b.GetLastEvent("pose/tractor/base")
	require.ErrorIs(t, err, ErrNoSubscription)
	require.False(t, ok)

	b.mu.RLock()
	_, received := b.state["pose/tractor/base"]
	b.mu.RUnlock()
	require.False(t, received, "unsubscribed bus received the event")
}

// TestGetLastEventWithoutSubscriptionReturnsError covers the same invariant
// from operation 3 of §4.4: reads are gated by this bus's own subscription
// set, independent of network activity.
func TestGetLastEventWithoutSubscriptionReturnsError(t *testing.T) {
	a, err := New("solo", Config{})
	require.NoError(t, err)
	t.Cleanup(func() { a.recvConn.Close(); a.sendConn.Close() })

	_, _, err = a.GetLastEvent("anything")
	require.ErrorIs(t, err, ErrNoSubscription)
}

// TestEvictStalePeers exercises invariant 6: a peer silent past the TTL is
// dropped from the peer table.
func TestEvictStalePeers(t *testing.T) {
	a, err := New("evict-test", Config{})
	require.NoError(t, err)
	t.Cleanup(func() { a.recvConn.Close(); a.sendConn.Close() })

	a.mu.Lock()
	a.peers["127.0.0.1:9999"] = wire.Announce{
		Service:   "stale-peer",
		Host:      "127.0.0.1",
		Port:      9999,
		RecvStamp: time.Now().Add(-(peerTTL + time.Second)),
	}
	a.peers["127.0.0.1:9998"] = wire.Announce{
		Service:   "fresh-peer",
		Host:      "127.0.0.1",
		Port:      9998,
		RecvStamp: time.Now(),
	}
	a.mu.Unlock()

	a.evictStalePeers()

	peers := a.Peers()
	require.Len(t, peers, 1)
	require.Equal(t, "fresh-peer", peers[0].Service)
}

// TestSubscriptionMatchingIsUnanchoredByDefault exercises invariant 7: a
// bare pattern matches anywhere in the name (RE2 search semantics), while an
// explicitly anchored pattern only matches the full name.
func TestSubscriptionMatchingIsUnanchoredByDefault(t *testing.T) {
	require.True(t, compilePattern("pose").MatchString("pose/tractor/base"))
	require.False(t, compilePattern("^pose$").MatchString("pose/tractor/base"))
	require.True(t, compilePattern("^pose$").MatchString("pose"))
}

// TestCompilePatternCachesUnmatchableOnError covers the degrade-rather-than-
// panic behavior for an unparseable subscription pattern.
func TestCompilePatternCachesUnmatchableOnError(t *testing.T) {
	re := compilePattern("(unclosed")
	require.False(t, re.MatchString("anything"))
	require.False(t, re.MatchString(""))
}

func TestEventQueueReceivesDispatchedEvents(t *testing.T) {
	a, b := newTestPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b.AddSubscriptions([]string{"steering"})
	runBus(t, ctx, a)
	runBus(t, ctx, b)

	require.Eventually(t, func() bool {
		return len(a.Peers()) > 0 && len(b.Peers()) > 0
	}, 2*time.Second, 20*time.Millisecond, "buses did not discover each other")

	q := b.EventQueue()
	defer q.Release()

	a.Send(wire.Event{Name: "steering", Data: wire.Payload{TypeURL: "test", Value: []byte("go")}})

	select {
	case e := <-q.C:
		require.Equal(t, "steering", e.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("event queue never received the event")
	}
}

func TestAddEventCallbackInvokedAndReleasedOnCancel(t *testing.T) {
	a, b := newTestPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b.AddSubscriptions([]string{"steering"})
	runBus(t, ctx, a)
	runBus(t, ctx, b)

	require.Eventually(t, func() bool {
		return len(a.Peers()) > 0 && len(b.Peers()) > 0
	}, 2*time.Second, 20*time.Millisecond, "buses did not discover each other")

	cbCtx, cbCancel := context.WithCancel(ctx)
	received := make(chan wire.Event, 1)
	b.AddEventCallback(cbCtx, func(e wire.Event) { received <- e })

	a.Send(wire.Event{Name: "steering", Data: wire.Payload{TypeURL: "test", Value: []byte("go")}})

	select {
	case e := <-received:
		require.Equal(t, "steering", e.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("callback was never invoked")
	}

	cbCancel()
	require.Eventually(t, func() bool {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		return len(b.eventSubs) == 0
	}, time.Second, 10*time.Millisecond, "callback queue was not released on cancel")
}
