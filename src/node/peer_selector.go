package node

import (
	"math/rand"

	"github.com/mosaicnetworks/sharechain/src/net"
)

// PeerSelector picks established peers for gossip.
type PeerSelector interface {
	Add(p *net.Peer)
	Remove(p *net.Peer)
	Get(nonce uint64) *net.Peer
	Len() int
	All() []*net.Peer
	Next(exclude *net.Peer) *net.Peer
}

//+++++++++++++++++++++++++++++++++++++++
//RANDOM

// RandomPeerSelector keeps the established peers keyed by nonce and picks
// among them uniformly. It is owned by the event loop.
type RandomPeerSelector struct {
	byNonce map[uint64]*net.Peer
	order   []*net.Peer
	rng     *rand.Rand
}

// NewRandomPeerSelector ...
func NewRandomPeerSelector(rng *rand.Rand) *RandomPeerSelector {
	return &RandomPeerSelector{
		byNonce: make(map[uint64]*net.Peer),
		rng:     rng,
	}
}

// Add registers an established peer.
func (ps *RandomPeerSelector) Add(p *net.Peer) {
	ps.byNonce[p.Nonce()] = p
	ps.order = append(ps.order, p)
}

// Remove forgets p. Removing a peer that was replaced, or never added, is a
// no-op.
func (ps *RandomPeerSelector) Remove(p *net.Peer) {
	if ps.byNonce[p.Nonce()] != p {
		return
	}
	delete(ps.byNonce, p.Nonce())
	for i, q := range ps.order {
		if q == p {
			ps.order = append(ps.order[:i], ps.order[i+1:]...)
			break
		}
	}
}

// Get returns the peer with the given nonce, or nil.
func (ps *RandomPeerSelector) Get(nonce uint64) *net.Peer {
	return ps.byNonce[nonce]
}

// Len ...
func (ps *RandomPeerSelector) Len() int {
	return len(ps.order)
}

// All returns the peers in connection order.
func (ps *RandomPeerSelector) All() []*net.Peer {
	res := make([]*net.Peer, len(ps.order))
	copy(res, ps.order)
	return res
}

// Next returns a random peer other than exclude, or nil.
func (ps *RandomPeerSelector) Next(exclude *net.Peer) *net.Peer {
	n := len(ps.order)
	if exclude != nil && ps.byNonce[exclude.Nonce()] == exclude {
		n--
	}
	if n <= 0 {
		return nil
	}
	i := ps.rng.Intn(n)
	for _, p := range ps.order {
		if p == exclude {
			continue
		}
		if i == 0 {
			return p
		}
		i--
	}
	return nil
}
