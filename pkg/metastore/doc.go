/*
Package metastore implements the placement center's durable state: broker
node registration, ACL users/rules, and a generic KV namespace, all backed
by an embedded bbolt database with one bucket per entity and JSON-encoded
values — the same layout cuemby-warren's pkg/storage/boltdb.go uses for its
cluster entities.

Every write in this package is expected to be called only from the Raft
FSM in pkg/meta's Apply, never directly from an RPC handler, so that all
mutation is replicated before it is visible.
*/
package metastore
