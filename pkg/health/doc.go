// Package health implements HTTP and TCP reachability checks, shared by
// both binaries' /ready admin endpoints: the placement center probes its
// own raft leadership state directly, while the MQTT broker uses
// health.TCPChecker to report whether its configured placement center is
// reachable. Status tracks consecutive failures/successes for callers
// that want hysteresis before flipping healthy/unhealthy, the same
// trade-off cuemby-warren's pkg/health makes for container checks.
package health
