// Package broker wires the MQTT broker process to the placement
// center: it registers this node once at startup and reports liveness
// on a fixed interval, the same register-then-heartbeat-loop shape
// cuemby-warren's worker uses against its manager, adapted from a
// container-status heartbeat to a plain liveness ping.
package broker
