/*
Package metrics provides Prometheus metrics collection and exposition for
the placement center and the MQTT broker.

All metrics are package-level collectors registered once in init(), following
the convention that a metric is always safe to touch from any package without
an explicit registration step. A Timer helper wraps the common
start-then-observe pattern used by the dispatcher and the Raft manager.

# Catalog

Connections: robustmq_connections_total{protocol}, robustmq_connections_accepted_total{listener},
robustmq_connections_rejected_total{reason}.

Staged server: robustmq_handler_queue_depth, robustmq_response_queue_depth,
robustmq_dispatcher_dropped_total{reason}.

Protocol: robustmq_packets_received_total{kind}, robustmq_packets_sent_total{kind},
robustmq_packet_handle_duration_seconds{kind}, robustmq_qos2_pending_total.

Shared subscriptions: robustmq_shared_sub_leaders_total,
robustmq_shared_sub_dispatched_total{strategy}.

Client pool / placement RPC: robustmq_pool_leases_in_use{service,module},
robustmq_placement_rpc_retries_total{method}, robustmq_placement_rpc_duration_seconds{method}.

Raft: robustmq_raft_is_leader, robustmq_raft_peers_total,
robustmq_raft_apply_duration_seconds, robustmq_raft_commit_duration_seconds.

Storage: robustmq_storage_write_duration_seconds{adapter}, robustmq_broker_nodes_total.

# Usage

	timer := metrics.NewTimer()
	// ... handle a packet ...
	timer.ObserveDurationVec(metrics.PacketHandleDuration, kind.String())

Expose the registry over HTTP with metrics.Handler(), mounted on the admin
HTTP server alongside the health endpoints in pkg/health.
*/
package metrics
