package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodicFiresRepeatedlyAfterInitialDelay(t *testing.T) {
	var fires int32
	var lastN int32

	p := newForTest(20*time.Millisecond, 10*time.Millisecond, func(n int) {
		atomic.AddInt32(&fires, 1)
		atomic.StoreInt32(&lastN, int32(n))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	p.Start(ctx)

	require.GreaterOrEqual(t, atomic.LoadInt32(&fires), int32(4))
	require.Equal(t, int32(1), atomic.LoadInt32(&lastN))
}

func TestPeriodicDispatchesThroughProvidedRunner(t *testing.T) {
	dispatched := make(chan func(), 4)
	p := newForTest(15*time.Millisecond, 5*time.Millisecond, func(int) {})
	p.dispatch = func(fn func()) { dispatched <- fn }

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	p.Start(ctx)

	select {
	case fn := <-dispatched:
		require.NotNil(t, fn)
	default:
		t.Fatal("expected at least one dispatched callback")
	}
}

// TestPeriodicReportsMissedTicks checks the missed-tick formula Start uses
// against a deadline 35 ms in the past, and that the resulting count reaches
// the callback unchanged. It does not run Start.
func TestPeriodicReportsMissedTicks(t *testing.T) {
	done := make(chan int, 1)
	p := newForTest(10*time.Millisecond, 0, func(n int) { done <- n })

	deadline := time.Now().Add(-35 * time.Millisecond)
	fired := time.Now()
	elapsed := fired.Sub(deadline)
	n := int(elapsed/p.period) + 1
	require.GreaterOrEqual(t, n, 4)
	p.cb(n)
	require.Equal(t, n, <-done)
}
