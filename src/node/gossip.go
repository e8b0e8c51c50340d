package node

import (
	"time"

	"github.com/mosaicnetworks/sharechain/src/net"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/wire"
	"github.com/sirupsen/logrus"
)

// solicitCount is the number of addresses asked for when the book runs low.
const solicitCount = 8

func (n *Node) gossipLucky() bool {
	return n.rng.Float64() < n.conf.GossipProbability
}

// onAddrMe records the sender's listening address. A loopback sender cannot
// know its public address, so its advertisement is passed to another peer,
// which will see the socket's real address.
func (n *Node) onAddrMe(p *net.Peer, msg *wire.MsgAddrMe) {
	ip := p.Addr().IP
	if ip.IsLoopback() {
		if n.gossipLucky() {
			if q := n.peers.Next(p); q != nil {
				q.Send(&wire.MsgAddrMe{Port: msg.Port})
			}
		}
		return
	}

	addr := peers.Addr{Host: ip.String(), Port: msg.Port}
	now := time.Now().Truncate(time.Second)
	if n.book.Record(addr, p.Services(), now) {
		n.logger.WithFields(logrus.Fields{
			"addr": addr,
			"peer": p,
		}).Debug("New address")
	}

	if n.gossipLucky() {
		if q := n.peers.Next(p); q != nil {
			q.Send(&wire.MsgAddrs{Addrs: []wire.AddrRecord{{
				Timestamp: uint64(now.Unix()),
				Address:   addr.NetAddress(p.Services()),
			}}})
		}
	}
}

// onAddrs records gossiped addresses. Timestamps from the future are clamped
// to now.
func (n *Node) onAddrs(p *net.Peer, msg *wire.MsgAddrs) {
	now := time.Now().Truncate(time.Second)
	for _, rec := range msg.Addrs {
		addr := peers.AddrFromNetAddress(rec.Address)
		if addr.Port == 0 || rec.Address.IP.IsUnspecified() {
			continue
		}
		seen := now
		if rec.Timestamp < uint64(now.Unix()) {
			seen = time.Unix(int64(rec.Timestamp), 0)
		}
		n.book.Record(addr, rec.Address.Services, seen)

		if n.gossipLucky() {
			if q := n.peers.Next(p); q != nil {
				q.Send(&wire.MsgAddrs{Addrs: []wire.AddrRecord{rec}})
			}
		}
	}
}

// onGetAddrs answers with up to 100 addresses from the book.
func (n *Node) onGetAddrs(p *net.Peer, msg *wire.MsgGetAddrs) {
	count := int(msg.Count)
	if count > wire.MaxGetAddrs {
		count = wire.MaxGetAddrs
	}

	var recs []wire.AddrRecord
	for _, e := range n.book.Sample(n.book.Len(), n.rng) {
		if len(recs) == count {
			break
		}
		// seeds that were never seen are not worth passing on
		if e.LastSeen.IsZero() {
			continue
		}
		recs = append(recs, wire.AddrRecord{
			Timestamp: uint64(e.LastSeen.Unix()),
			Address:   e.Addr.NetAddress(e.Services),
		})
	}
	p.Send(&wire.MsgAddrs{Addrs: recs})
}

// solicitAddrs asks a random peer for addresses while the book is small.
func (n *Node) solicitAddrs() {
	if n.book.Len() >= n.conf.MinAddresses {
		return
	}
	if q := n.peers.Next(nil); q != nil {
		q.Send(&wire.MsgGetAddrs{Count: solicitCount})
	}
}
