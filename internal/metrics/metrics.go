// Package metrics exposes the node's Prometheus instrumentation: tick
// duration, queue depth, broadcast lag, and follower verified-slot
// progress, via github.com/prometheus/client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the gauges/counters/histograms this node publishes. A
// nil *Metrics is not usable; construct with New.
type Metrics struct {
	TickDuration     prometheus.Histogram
	QueueDepth       prometheus.Gauge
	BroadcastLag     *prometheus.CounterVec
	FollowerVerified prometheus.Gauge
	SlotsProcessed   prometheus.Counter
	TxRejected       *prometheus.CounterVec
}

// New registers and returns the node's metrics against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer for the process-wide one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "l2chain",
			Subsystem: "executor",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of a single tick's drain/execute/hash/commit/publish cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "l2chain",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of transactions currently buffered in the admission queue.",
		}),
		BroadcastLag: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "l2chain",
			Subsystem: "broadcast",
			Name:      "lagged_frames_total",
			Help:      "Frames dropped because a follower session's outbound buffer was full.",
		}, []string{"session"}),
		FollowerVerified: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "l2chain",
			Subsystem: "follower",
			Name:      "verified_slot",
			Help:      "Highest slot this follower has verified and applied.",
		}),
		SlotsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "l2chain",
			Subsystem: "executor",
			Name:      "slots_processed_total",
			Help:      "Total slots advanced by the slot clock, including empty ones.",
		}),
		TxRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "l2chain",
			Subsystem: "executor",
			Name:      "tx_rejected_total",
			Help:      "Transactions rejected, labeled by rejection kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.TickDuration,
		m.QueueDepth,
		m.BroadcastLag,
		m.FollowerVerified,
		m.SlotsProcessed,
		m.TxRejected,
	)
	return m
}
