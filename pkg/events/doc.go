// Package events is a non-blocking in-memory pub/sub bus for broker and
// placement-center lifecycle notifications (client connect/disconnect,
// session expiry, shared-subscription leader start/stop, cluster
// membership changes). Publish never blocks on subscribers: a full
// subscriber buffer simply drops the event, the same trade-off
// cuemby-warren's pkg/events makes for cluster events.
package events
