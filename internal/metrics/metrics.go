package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe loop and watcher instrumentation, partitioned by pinger name so
// several probes scraping into one Prometheus stay distinguishable.

var (
	// Probe loop
	ConfirmationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ping_thing",
		Subsystem: "client",
		Name:      "confirmation_latency_ms",
		Help:      "Time from first submit to confirmation at the configured commitment",
		Buckets:   confirmationBuckets(),
	}, []string{"pinger_name"})

	SlotLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ping_thing",
		Subsystem: "client",
		Name:      "slot_latency",
		Help:      "Slots elapsed between submit and landing",
		Buckets:   prometheus.LinearBuckets(1, 1, 30),
	}, []string{"pinger_name"})

	ProbesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "client",
		Name:      "probes_sent_total",
		Help:      "Total probe transactions submitted",
	}, []string{"pinger_name"})

	ProbesResent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "client",
		Name:      "probes_resent_total",
		Help:      "Total resubmissions while waiting for confirmation",
	}, []string{"pinger_name"})

	ProbeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "client",
		Name:      "probe_outcomes_total",
		Help:      "Probe attempts by final outcome",
	}, []string{"pinger_name", "outcome"})

	FreshnessWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ping_thing",
		Subsystem: "client",
		Name:      "freshness_wait_ms",
		Help:      "Time the probe loop spent waiting for fresh anchor and slot",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"pinger_name"})

	// Watchers
	WatcherUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "watch",
		Name:      "updates_total",
		Help:      "Fresh values written by background watchers",
	}, []string{"watcher"})

	WatcherFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "watch",
		Name:      "failures_total",
		Help:      "Watcher fetch/subscription failures",
	}, []string{"watcher"})

	WatcherResubscribes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "watch",
		Name:      "resubscribes_total",
		Help:      "Slot feed resubscriptions, by reason",
	}, []string{"reason"})

	// Reporter
	ReportsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "report",
		Name:      "sent_total",
		Help:      "Measurements accepted by the collection endpoint",
	}, []string{"pinger_name"})

	ReportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "report",
		Name:      "failures_total",
		Help:      "Measurement posts rejected or failed in transit",
	}, []string{"pinger_name"})

	// Priority fees
	PriorityFeeMicroLamports = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ping_thing",
		Subsystem: "fees",
		Name:      "priority_fee_micro_lamports",
		Help:      "Most recent priority fee applied to probes",
	}, []string{"pinger_name"})

	// RPC rate limiting
	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "client",
		Name:      "rate_limit_waits_total",
		Help:      "Probe iterations delayed by the transactions-per-minute limit",
	})

	// Alerts
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts dispatched to the configured webhook",
	}, []string{"type"})

	AlertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ping_thing",
		Subsystem: "alert",
		Name:      "failures_total",
		Help:      "Alert deliveries that failed",
	})
)

// confirmationBuckets covers the usual confirmation range on mainnet:
// sub-second when healthy, multiple seconds under congestion, capped at
// the 20s confirmation timeout.
func confirmationBuckets() []float64 {
	return []float64{
		100, 200, 300, 400, 500, 750,
		1000, 1500, 2000, 3000, 4000, 5000, 7500,
		10000, 15000, 20000,
	}
}
