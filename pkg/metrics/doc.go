/*
Package metrics declares the process's Prometheus instrumentation: bus
traffic counters, the discovery peer-table gauge, the control loop's
per-tick duration histogram, and the steering lockout gauge.

Counters and gauges driven by state changes (events sent/received, peer
table size) are updated inline at the call site that already holds the
relevant state (pkg/bus). Polled state with no natural "changed" event of
its own — the steering lockout flag — is sampled by a ticker-driven
Collector instead.

	metrics.EventsSent.WithLabelValues(e.Name).Inc()

	timer := metrics.NewTimer()
	c.tick(n)
	timer.ObserveDuration(metrics.ControlTickDuration)

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
