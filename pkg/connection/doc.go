/*
Package connection is the Connection Manager of spec section 4.4: two
concurrent maps (conn_id -> Connection, conn_id -> WriteSink) so accepting
a connection, writing a frame, and tearing one down never contend on a
single lock, the same sync.Map-based sharing the manager's sessions and
caches use elsewhere in this module.
*/
package connection
