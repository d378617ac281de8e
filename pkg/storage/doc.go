/*
Package storage defines the broker's pluggable message-storage
collaborator (spec section 4.3): shard lifecycle, a small KV subset, and
an append/commit-offset streaming API consumer groups read from.

MemoryAdapter is a single-process implementation good enough for a
standalone broker or tests. PlacementAdapter persists the KV subset
through the placement center's raft-replicated namespace via
pkg/client.PlacementClient so session state survives a restart, while
delegating streaming to an embedded MemoryAdapter.
*/
package storage
