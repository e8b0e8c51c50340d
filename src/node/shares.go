package node

import (
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/net"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/tracker"
	"github.com/mosaicnetworks/sharechain/src/wire"
	"github.com/sirupsen/logrus"
)

const (
	// maxRequestParents bounds the random ancestor count of getshares
	// requests.
	maxRequestParents = 500

	// maxRequestStops bounds the stop list of getshares requests.
	maxRequestStops = 100

	// relayDepth is how many shares behind a new best head are relayed.
	relayDepth = 5

	// maxDesiredPerThink bounds the hashes requested after one Think step.
	maxDesiredPerThink = 100
)

// onShares hands received shares to the tracker, tagged with the sender.
func (n *Node) onShares(p *net.Peer, msg *wire.MsgShares) {
	from := tracker.PeerID(p.Nonce())
	added := 0
	for _, raw := range msg.Shares {
		s, err := share.FromWire(raw)
		if err != nil {
			n.metrics.sharesRejected.WithLabelValues("malformed").Inc()
			n.logger.WithError(err).WithField("peer", p).Info("Dropping malformed share")
			continue
		}
		if err := s.CheckWork(n.params); err != nil {
			n.metrics.sharesRejected.WithLabelValues("work").Inc()
			n.logger.WithError(err).WithFields(logrus.Fields{
				"peer":  p,
				"share": s.Hash(),
			}).Debug("Dropping share without proof of work")
			continue
		}
		ok, err := n.tracker.Add(s, from)
		if err != nil {
			reason := "cycle"
			if errors.Is(err, tracker.ErrDropped) {
				reason = "dropped"
			}
			n.metrics.sharesRejected.WithLabelValues(reason).Inc()
			n.logger.WithError(err).WithFields(logrus.Fields{
				"peer":  p,
				"share": s.Hash(),
			}).Info("Dropping share")
			continue
		}
		// the sender has it
		n.relayed.Add(relayKey{p.Nonce(), s.Hash()}, struct{}{})
		if ok {
			added++
		}
	}
	if added == 0 {
		return
	}
	n.metrics.sharesReceived.Add(float64(added))
	n.logger.WithFields(logrus.Fields{
		"peer":  p,
		"count": added,
	}).Debug("Received shares")
	n.think()
}

// onGetShares answers a getshares request.
func (n *Node) onGetShares(p *net.Peer, msg *wire.MsgGetShares) {
	shares := n.tracker.GetShares(msg.Hashes, msg.Parents, msg.Stops)
	if len(shares) == 0 {
		return
	}
	raws := make([]*wire.RawShare, len(shares))
	for i, s := range shares {
		raws[i] = s.ToWire()
		n.relayed.Add(relayKey{p.Nonce(), s.Hash()}, struct{}{})
	}
	if err := p.SendShares(raws); err != nil {
		n.logger.WithError(err).WithField("peer", p).Debug("Sending shares")
	}
}

// think runs the tracker, requests what it is missing and relays a new best
// head.
func (n *Node) think() {
	res := n.tracker.Think(n.heights, time.Now())

	if len(res.Verified) > 0 {
		n.metrics.sharesVerified.Add(float64(len(res.Verified)))
		for _, h := range res.Verified {
			if s := n.tracker.Get(h); s != nil && s.MeetsBlockTarget() {
				n.metrics.blocksFound.Inc()
				n.logger.WithFields(logrus.Fields{
					"share": h,
					"block": s.Header.PrevBlock,
				}).Info("Share solves a block")
			}
		}
	}
	for status, count := range n.tracker.Counts() {
		n.metrics.trackerShares.WithLabelValues(status.String()).Set(float64(count))
	}

	n.requestShares(res.Desired)

	prev := n.BestShare()
	if res.Best == nil || (prev != nil && *prev == *res.Best) {
		return
	}
	n.bestShare.Store(res.Best)
	height, _ := n.tracker.HeightAndLast(*res.Best)
	n.logger.WithFields(logrus.Fields{
		"share":  res.Best,
		"height": height,
	}).Info("New best share")
	n.relay(*res.Best)
}

// requestShares asks for the desired hashes not requested in the last
// DesiredTTL, at most maxDesiredPerThink of them. Hashes go to the peer that
// sent the share missing them when it is still connected, to a random peer
// otherwise, in one getshares message per peer. A peer with a busy send queue
// is skipped and its hashes are asked again on a later step.
func (n *Node) requestShares(ds []tracker.Desired) {
	var order []*net.Peer
	batches := make(map[*net.Peer][]chainhash.Hash)
	count := 0
	for _, d := range ds {
		if count == maxDesiredPerThink {
			break
		}
		if n.desired.Contains(d.Hash) {
			continue
		}
		var p *net.Peer
		if d.Peer != tracker.LocalPeer {
			p = n.peers.Get(uint64(d.Peer))
		}
		if p == nil {
			p = n.peers.Next(nil)
		}
		if p == nil {
			return
		}
		if _, ok := batches[p]; !ok {
			order = append(order, p)
		}
		batches[p] = append(batches[p], d.Hash)
		count++
	}
	if count == 0 {
		return
	}

	stops := n.tracker.Heads()
	if len(stops) > maxRequestStops {
		stops = stops[:maxRequestStops]
	}
	for _, p := range order {
		hashes := batches[p]
		msg := &wire.MsgGetShares{
			Hashes:  hashes,
			Parents: uint64(n.rng.Intn(maxRequestParents)),
			Stops:   stops,
		}
		if err := p.TrySend(msg); err != nil {
			n.logger.WithError(err).WithField("peer", p).Debug("Deferring share request")
			continue
		}
		for _, h := range hashes {
			n.desired.Add(h, struct{}{})
		}
		n.metrics.desired.Add(float64(len(hashes)))
		n.logger.WithFields(logrus.Fields{
			"peer":   p,
			"hashes": len(hashes),
		}).Debug("Requested shares")
	}
}

// relay sends head and its recent ancestors to every peer that does not have
// them yet, oldest first.
func (n *Node) relay(head chainhash.Hash) {
	chain := share.Walk(n.tracker, &head, relayDepth)
	for _, p := range n.peers.All() {
		var out []*wire.RawShare
		for i := len(chain) - 1; i >= 0; i-- {
			s := chain[i]
			key := relayKey{p.Nonce(), s.Hash()}
			if n.relayed.Contains(key) {
				continue
			}
			if from, _ := n.tracker.From(s.Hash()); from != tracker.LocalPeer && uint64(from) == p.Nonce() {
				continue
			}
			n.relayed.Add(key, struct{}{})
			out = append(out, s.ToWire())
		}
		if len(out) == 0 {
			continue
		}
		if err := p.SendShares(out); err != nil {
			n.logger.WithError(err).WithField("peer", p).Debug("Relaying shares")
			continue
		}
		n.metrics.sharesRelayed.Add(float64(len(out)))
	}
}
