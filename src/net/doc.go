// Package net carries share network connections.
//
// A StreamLayer accepts and dials connections. TCPStreamLayer works over
// sockets; InmemStreamLayer connects in-process nodes with pipes that report
// TCP addresses, which is what the tests use.
//
// Peer runs the protocol of one connection: it exchanges handshakes, enforces
// the handshake and idle timeouts, sends keepalive pings and addrme
// advertisements at exponentially distributed intervals and hands every
// message to a Handler. Peers never touch shared state themselves; the node
// owning the peer set does that from its own goroutine.
package net
