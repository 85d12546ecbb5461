// Package timer implements the monotonic periodic timer primitive that
// drives the event bus's announce/evict cadence and the control loop's
// tick rate.
package timer

import (
	"context"
	"time"

	"github.com/fieldctl/fieldbus/pkg/log"
)

// Callback is invoked once per fire with the number of periods that have
// elapsed since the previous fire (normally 1; greater than 1 only if the
// scheduler fell behind).
type Callback func(nPeriods int)

// Dispatch runs fn on whatever single-threaded scheduler owns bus/control
// state. Periodic never calls a Callback directly from its own timing
// goroutine — it always hands the invocation to Dispatch, so all bus and
// control-loop state mutation happens on one goroutine regardless of how
// many Periodic timers are running concurrently. A nil Dispatch runs fn
// inline, which is adequate for standalone tests of Periodic itself.
type Dispatch func(fn func())

// Periodic fires a Callback for the first time one second after Start is
// called (not after New), then every period thereafter, reporting the number of elapsed periods at
// each fire. It is the Go realization of a monotonic-clock timerfd: since Go
// exposes no portable timerfd, the elapsed-period count is derived from how
// far the actual fire time overshot the scheduled deadline.
type Periodic struct {
	name         string
	period       time.Duration
	cb           Callback
	dispatch     Dispatch
	initialDelay time.Duration
}

// New constructs a Periodic whose first fire is one second out, matching
// §4.1's contract. It does not start firing until Start is called.
func New(period time.Duration, name string, cb Callback, dispatch Dispatch) *Periodic {
	return &Periodic{name: name, period: period, cb: cb, dispatch: dispatch, initialDelay: time.Second}
}

// newForTest builds a Periodic with a caller-chosen initial delay so tests
// don't have to wait out the real one-second anchor.
func newForTest(period, initialDelay time.Duration, cb Callback) *Periodic {
	return &Periodic{name: "test", period: period, cb: cb, initialDelay: initialDelay}
}

// Start runs the timer until ctx is cancelled. It blocks, so callers run it
// in its own goroutine.
func (p *Periodic) Start(ctx context.Context) {
	logger := log.WithComponent("timer").With().Str("timer", p.name).Logger()

	deadline := time.Now().Add(p.initialDelay)
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fired := <-timer.C:
			elapsed := fired.Sub(deadline)
			nPeriods := int(elapsed/p.period) + 1
			if nPeriods < 1 {
				nPeriods = 1
			}
			if nPeriods > 1 {
				logger.Warn().Int("n_periods", nPeriods).Msg("periodic timer missed ticks")
			}

			deadline = deadline.Add(time.Duration(nPeriods) * p.period)
			next := time.Until(deadline)
			if next <= 0 {
				// Deadline has already passed (e.g. after a long pause);
				// re-anchor to now rather than firing a burst of catch-up
				// timers.
				deadline = time.Now().Add(p.period)
				next = p.period
			}
			timer.Reset(next)

			cb := p.cb
			n := nPeriods
			if p.dispatch != nil {
				p.dispatch(func() { cb(n) })
			} else {
				cb(n)
			}
		}
	}
}
