// Package dispatcher is the Command Dispatcher of spec section 4.6: a
// map[packet.Kind]Handler routes each decoded packet to the function
// that knows how to apply it against the Connection Manager, Cache
// Manager, and Storage Adapter, optionally producing a reply packet.
package dispatcher
