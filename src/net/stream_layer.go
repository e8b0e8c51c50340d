package net

import (
	"net"
	"time"
)

// StreamLayer is the low level stream abstraction used by the node: it
// accepts inbound connections and dials outbound ones.
type StreamLayer interface {
	net.Listener

	// Dial is used to create a new outgoing connection
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr returns the publicly-reachable address of the stream
	AdvertiseAddr() string
}
