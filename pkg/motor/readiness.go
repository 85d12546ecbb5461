package motor

import "time"

// ReadinessConfig mirrors a container health check's retry/grace-period
// shape, applied here to CAN telemetry freshness instead of HTTP/TCP/exec
// probes: a motor is healthy until Retries consecutive Evaluate calls find
// its last telemetry older than Window.
type ReadinessConfig struct {
	Window      time.Duration // how often telemetry is expected
	Retries     int           // consecutive stale Evaluate calls before unhealthy
	StartPeriod time.Duration // grace period after construction before checks count
}

// DefaultReadinessConfig matches the control loop's 50 Hz tick: a motor
// must produce at least one CAN update every 100 ms (5 ticks); it is marked
// unhealthy on the 3rd consecutive tick that finds its telemetry older than
// that.
func DefaultReadinessConfig() ReadinessConfig {
	return ReadinessConfig{Window: 100 * time.Millisecond, Retries: 3, StartPeriod: 250 * time.Millisecond}
}

// Readiness tracks whether a motor's telemetry is arriving often enough to
// trust its reported velocity.
type Readiness struct {
	consecutiveMissed int
	healthy           bool
	lastUpdate        time.Time
	startedAt         time.Time
}

// NewReadiness constructs a Readiness assumed healthy until proven
// otherwise, the way a freshly-started container is.
func NewReadiness(now time.Time) *Readiness {
	return &Readiness{healthy: true, startedAt: now, lastUpdate: now}
}

// Observe records that fresh telemetry arrived at now.
func (r *Readiness) Observe(now time.Time) {
	r.lastUpdate = now
	r.consecutiveMissed = 0
	r.healthy = true
}

// Evaluate is called once per control tick to age out stale telemetry. It
// is a no-op during cfg.StartPeriod.
func (r *Readiness) Evaluate(now time.Time, cfg ReadinessConfig) {
	if now.Sub(r.startedAt) < cfg.StartPeriod {
		return
	}
	if now.Sub(r.lastUpdate) <= cfg.Window {
		return
	}
	r.consecutiveMissed++
	if r.consecutiveMissed >= cfg.Retries {
		r.healthy = false
	}
}

// Healthy reports the current readiness verdict.
func (r *Readiness) Healthy() bool { return r.healthy }
