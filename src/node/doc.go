// Package node implements the reactive component of a share-chain node.
//
// A Node owns the share tracker and the set of peer connections. It accepts
// incoming connections, keeps a number of outgoing connections open to
// addresses from its address book, and reacts to the messages its peers send.
//
// Event loop
//
// All the state of a node is owned by a single goroutine. Connections forward
// what they read over a channel, dials and accepts report their outcome over
// another one, and the public methods run closures on the loop and wait for
// them. Nothing the loop does blocks on the network: messages for peers are
// queued and written by the connection goroutines.
//
// Shares
//
// Shares received from peers are added to the tracker, which verifies them in
// chain order and picks the best verified head. Missing ancestors are
// requested with getshares from the peer that announced the share. When the
// best head changes, the last few shares of its chain are relayed to every
// peer that has not seen them yet.
//
// Addresses
//
// Peers advertise their listening port with addrme. The node records the
// address and forwards it to another peer. When its address book runs low the
// node asks its peers for more with getaddrs. Hosts that violate the protocol
// are refused for the rest of the session.
package node
