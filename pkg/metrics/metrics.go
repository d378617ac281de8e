package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Broker connection metrics
	ConnectionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robustmq_connections_total",
			Help: "Total number of live connections by protocol",
		},
		[]string{"protocol"},
	)

	ConnectionsAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_connections_accepted_total",
			Help: "Total number of accepted connections by listener",
		},
		[]string{"listener"},
	)

	ConnectionsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_connections_rejected_total",
			Help: "Total number of connections rejected by reason",
		},
		[]string{"reason"},
	)

	// Staged-server queue depth
	HandlerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robustmq_handler_queue_depth",
			Help: "Current number of packets queued for handler workers",
		},
	)

	ResponseQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robustmq_response_queue_depth",
			Help: "Current number of packets queued for response workers",
		},
	)

	DispatcherDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_dispatcher_dropped_total",
			Help: "Total number of packets dropped by the dispatcher stage, by reason",
		},
		[]string{"reason"},
	)

	// MQTT protocol metrics
	PacketsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_packets_received_total",
			Help: "Total number of MQTT packets received by kind",
		},
		[]string{"kind"},
	)

	PacketsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_packets_sent_total",
			Help: "Total number of MQTT packets sent by kind",
		},
		[]string{"kind"},
	)

	PacketHandleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_packet_handle_duration_seconds",
			Help:    "Time taken to handle an MQTT packet in the dispatcher",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	QoS2PendingTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robustmq_qos2_pending_total",
			Help: "Current number of in-flight QoS2 exchanges awaiting completion",
		},
	)

	// Shared subscription metrics
	SharedSubLeadersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robustmq_shared_sub_leaders_total",
			Help: "Current number of active shared-subscription leader loops",
		},
	)

	SharedSubDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_shared_sub_dispatched_total",
			Help: "Total number of records dispatched to shared-subscription consumers by strategy",
		},
		[]string{"strategy"},
	)

	// Client pool / placement RPC metrics
	PoolLeasesInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robustmq_pool_leases_in_use",
			Help: "Current number of leased connections per pool key",
		},
		[]string{"service", "module"},
	)

	PlacementRPCRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_placement_rpc_retries_total",
			Help: "Total number of retried placement RPC calls by method",
		},
		[]string{"method"},
	)

	PlacementRPCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_placement_rpc_duration_seconds",
			Help:    "Placement RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Raft metrics (Placement Center)
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robustmq_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robustmq_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "robustmq_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "robustmq_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Storage adapter metrics
	StorageWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_storage_write_duration_seconds",
			Help:    "Time taken to append a record to a shard",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	BrokerNodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robustmq_broker_nodes_total",
			Help: "Total number of registered broker nodes",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ConnectionsAcceptedTotal,
		ConnectionsRejectedTotal,
		HandlerQueueDepth,
		ResponseQueueDepth,
		DispatcherDroppedTotal,
		PacketsReceivedTotal,
		PacketsSentTotal,
		PacketHandleDuration,
		QoS2PendingTotal,
		SharedSubLeadersTotal,
		SharedSubDispatchedTotal,
		PoolLeasesInUse,
		PlacementRPCRetriesTotal,
		PlacementRPCDuration,
		RaftLeader,
		RaftPeers,
		RaftApplyDuration,
		RaftCommitDuration,
		StorageWriteDuration,
		BrokerNodesTotal,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
