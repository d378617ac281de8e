// Package network is the staged TCP/TLS server of spec section 4.5: a
// fixed pool of acceptor, handler, and response goroutines connected by
// bounded channels, so a slow handler or a stalled socket write can
// never block the accept loop or another connection's reader. Handler
// and response dispatch use a rotating cursor across the worker pool,
// dropping (and logging) an item only after a full revolution finds
// every worker's queue full.
package network
