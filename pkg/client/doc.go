/*
Package client is the broker-side half of pkg/rpcapi: a sharded, bounded
connection Pool keyed by "{service}_{module}_{address}" (spec section
4.1, grounded on the round-robin connection pool in
other_examples/fefee034_ibs-source-syslog-consumer's mqtt.Pool), and
PlacementClient, which wraps each placement RPC with the checkout-retry-
backoff shape of spec section 4.2.
*/
package client
