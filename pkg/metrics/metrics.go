package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bus traffic metrics.
	EventsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldbus_events_sent_total",
			Help: "Total unicast events sent, by event name.",
		},
		[]string{"event_name"},
	)

	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldbus_events_received_total",
			Help: "Total unicast events received, by event name.",
		},
		[]string{"event_name"},
	)

	DatagramsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldbus_datagrams_dropped_total",
			Help: "Total datagrams dropped, by reason (oversize, send_error, subscriber_queue_full, malformed).",
		},
		[]string{"reason"},
	)

	// PeersTotal is the current size of the discovery peer table.
	PeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldbus_peers_total",
			Help: "Current size of the discovery peer table.",
		},
	)

	// ControlTickDuration is the wall time spent in one control loop tick.
	ControlTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldbus_control_tick_duration_seconds",
			Help:    "Wall time spent executing one control loop tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us .. ~400ms
		},
	)

	// SteeringLockout is 1 while the steering client's safety lockout is
	// engaged, 0 while commands are passing through.
	SteeringLockout = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldbus_steering_lockout",
			Help: "1 if the steering client currently has its safety lockout engaged, 0 otherwise.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsSent,
		EventsReceived,
		DatagramsDropped,
		PeersTotal,
		ControlTickDuration,
		SteeringLockout,
	)
}

// Handler returns the Prometheus scrape handler for the process's /metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for observing an operation's duration into a
// histogram without threading time.Now() calls through call sites.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time since NewTimer into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec is the label-vector analogue of ObserveDuration.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since NewTimer.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
