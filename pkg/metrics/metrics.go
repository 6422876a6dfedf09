// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionRequestsTotal tracks connection request operations by outcome
	ConnectionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "connections",
			Name:      "requests_total",
			Help:      "Total number of connection request operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// MessagesSentTotal tracks messages accepted into the log
	MessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "messaging",
			Name:      "messages_sent_total",
			Help:      "Total number of messages appended to conversation logs",
		},
	)

	// MessagesReadTotal tracks read receipts written by mark-read batches
	MessagesReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "messaging",
			Name:      "messages_read_total",
			Help:      "Total number of messages marked read",
		},
	)

	// SendDuration tracks end-to-end message send duration in seconds
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "messaging",
			Name:      "send_duration_seconds",
			Help:      "Duration of message send operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// RealtimeSubscriptions tracks live fan-out registrations
	RealtimeSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "realtime",
			Name:      "subscriptions",
			Help:      "Number of live conversation subscriptions",
		},
	)

	// RealtimeEventsTotal tracks events dispatched to subscribers
	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Total number of realtime events dispatched to subscribers",
		},
		[]string{"type"},
	)

	// RealtimeDroppedTotal tracks events dropped on slow subscribers
	RealtimeDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "realtime",
			Name:      "dropped_total",
			Help:      "Total number of realtime events dropped because a subscriber was not draining",
		},
	)
)
