// Package metrics holds the Prometheus collectors shared by the relay engine
// and the simulated medium.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as label values
const (
	ReasonForeign   = "foreign"
	ReasonExpired   = "expired"
	ReasonDuplicate = "duplicate"
	ReasonOverflow  = "overflow"
	ReasonEvicted   = "evicted"
)

// =============================================================================
// Engine Metrics
// =============================================================================

var (
	// IngestReceivedTotal counts raw advertisements handed to the engine
	IngestReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "btbmesh_ingest_received_total",
			Help: "Total number of raw advertisements received",
		},
	)

	// IngestDroppedTotal counts inbound advertisements dropped before use
	IngestDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btbmesh_ingest_dropped_total",
			Help: "Total number of inbound advertisements dropped",
		},
		[]string{"reason"}, // "foreign", "expired", "duplicate", "overflow"
	)

	// MessagesDisplayedTotal counts packets surfaced to the display
	MessagesDisplayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btbmesh_messages_displayed_total",
			Help: "Total number of messages shown on the display",
		},
		[]string{"origin"}, // "local", "remote"
	)

	// MessagesSquelchedTotal counts accepted packets with a foreign privacy code
	MessagesSquelchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "btbmesh_messages_squelched_total",
			Help: "Total number of accepted packets not displayed due to privacy code mismatch",
		},
	)

	// OutboundDiscardedTotal counts queued packets discarded at selection time
	OutboundDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btbmesh_outbound_discarded_total",
			Help: "Total number of queued packets discarded instead of sent",
		},
		[]string{"queue", "reason"}, // queue: "local", "relay"; reason: "expired", "evicted", "overflow"
	)

	// TransmitTotal counts packets handed to the transport
	TransmitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btbmesh_transmit_total",
			Help: "Total number of packets handed to the transport",
		},
		[]string{"queue", "status"}, // queue: "local", "relay"; status: "success", "error"
	)

	// RelayPoolSize tracks the number of relay candidates
	RelayPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "btbmesh_relay_pool_size",
			Help: "Current number of relay candidates",
		},
	)

	// RelayPoolWeight tracks the running priority total of the relay pool
	RelayPoolWeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "btbmesh_relay_pool_weight",
			Help: "Current sum of relay candidate priority weights",
		},
	)

	// LocalQueueSize tracks locally originated packets waiting to be sent
	LocalQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "btbmesh_local_queue_size",
			Help: "Current number of locally originated packets queued",
		},
	)

	// LoopFailuresTotal counts worker iterations that ended in an error or panic
	LoopFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btbmesh_loop_failures_total",
			Help: "Total number of worker loop iterations that failed",
		},
		[]string{"worker"}, // "scheduler", "ingest", "input"
	)
)

// =============================================================================
// Medium Metrics
// =============================================================================

var (
	// HubNodes tracks nodes attached to the broadcast hub
	HubNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "btbmesh_hub_nodes",
			Help: "Current number of nodes attached to the hub",
		},
	)

	// HubFanoutTotal counts scan frames delivered by the hub
	HubFanoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btbmesh_hub_fanout_total",
			Help: "Total number of advertisements delivered to listeners",
		},
		[]string{"status"}, // "success", "error"
	)
)
