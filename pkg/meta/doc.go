/*
Package meta implements the placement center's Raft-replicated control
plane: cluster membership, broker node registration, and ACL state.

Manager wraps a hashicorp/raft group and a pkg/metastore.Store. All writes
go through Manager.Apply, which replicates a Command through raft before
FSM.Apply mutates the store, so every node's metastore converges on the
same sequence of commands. Reads bypass raft and hit the local store
directly, the same split cuemby-warren's pkg/manager uses.

This grounding matches cuemby-warren/pkg/manager/manager.go and fsm.go,
adapted from container/service/secret entities to broker nodes and ACL
state, and with the token-based Join RPC replaced by static
placement_center address list configuration.
*/
package meta
