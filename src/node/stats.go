package node

import (
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// PeerInfo describes an established connection.
type PeerInfo struct {
	Addr        string    `json:"addr"`
	Nonce       string    `json:"nonce"`
	Incoming    bool      `json:"incoming"`
	SubVersion  string    `json:"sub_version"`
	ConnectedAt time.Time `json:"connected_at"`
}

// HeadInfo describes a head of the share graph.
type HeadInfo struct {
	Hash     string `json:"hash"`
	Height   int    `json:"height"`
	Status   string `json:"status"`
	Verified bool   `json:"verified_head"`
	Best     bool   `json:"best"`
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	var s map[string]string
	if err := n.do(func() { s = n.stats() }); err != nil {
		return map[string]string{"state": Shutdown.String()}
	}
	return s
}

// stats must run on the event loop.
func (n *Node) stats() map[string]string {
	counts := n.tracker.Counts()

	best := "none"
	bestHeight := 0
	if b := n.BestShare(); b != nil {
		best = b.String()
		bestHeight, _ = n.tracker.HeightAndLast(*b)
	}

	return map[string]string{
		"nonce":           fmt.Sprintf("%x", n.nonce),
		"state":           n.getState().String(),
		"uptime":          time.Since(n.start).Truncate(time.Second).String(),
		"num_peers":       strconv.Itoa(n.peers.Len()),
		"incoming":        strconv.Itoa(n.incoming),
		"outgoing":        strconv.Itoa(len(n.outgoing)),
		"addresses":       strconv.Itoa(n.book.Len()),
		"shares":          strconv.Itoa(n.tracker.Len()),
		"verified_shares": strconv.Itoa(counts[tracker.Verified]),
		"invalid_shares":  strconv.Itoa(counts[tracker.Invalid]),
		"heads":           strconv.Itoa(len(n.tracker.Heads())),
		"verified_heads":  strconv.Itoa(len(n.tracker.VerifiedHeads())),
		"best_share":      best,
		"best_height":     strconv.Itoa(bestHeight),
		"chain_height":    strconv.FormatInt(n.heights.BestHeight(), 10),
	}
}

func (n *Node) logStats() {
	stats := n.stats()
	fields := make(logrus.Fields, len(stats))
	for k, v := range stats {
		fields[k] = v
	}
	n.logger.WithFields(fields).Debug("Stats")
}

// GetPeers returns the established connections.
func (n *Node) GetPeers() []PeerInfo {
	var res []PeerInfo
	n.do(func() {
		for _, p := range n.peers.All() {
			res = append(res, PeerInfo{
				Addr:        p.Addr().String(),
				Nonce:       fmt.Sprintf("%x", p.Nonce()),
				Incoming:    p.Incoming(),
				SubVersion:  p.SubVersion(),
				ConnectedAt: p.ConnectedAt(),
			})
		}
	})
	return res
}

// GetHeads returns the heads of the share graph.
func (n *Node) GetHeads() []HeadInfo {
	var res []HeadInfo
	n.do(func() {
		best := n.BestShare()
		verified := make(map[chainhash.Hash]bool)
		for _, h := range n.tracker.VerifiedHeads() {
			verified[h] = true
		}
		heads := n.tracker.Heads()
		for h := range verified {
			if !contains(heads, h) {
				heads = append(heads, h)
			}
		}
		for _, h := range heads {
			height, _ := n.tracker.HeightAndLast(h)
			status, _ := n.tracker.Status(h)
			res = append(res, HeadInfo{
				Hash:     h.String(),
				Height:   height,
				Status:   status.String(),
				Verified: verified[h],
				Best:     best != nil && *best == h,
			})
		}
	})
	return res
}

func contains(hashes []chainhash.Hash, h chainhash.Hash) bool {
	for _, x := range hashes {
		if x == h {
			return true
		}
	}
	return false
}

// GetShare returns a known share and its status.
func (n *Node) GetShare(h chainhash.Hash) (*share.Share, tracker.Status, error) {
	var s *share.Share
	var status tracker.Status
	if err := n.do(func() {
		s = n.tracker.Get(h)
		status, _ = n.tracker.Status(h)
	}); err != nil {
		return nil, status, err
	}
	if s == nil {
		return nil, status, common.NewStoreErr("Share", common.KeyNotFound, h.String())
	}
	return s, status, nil
}

// GetAddresses returns the address book entries.
func (n *Node) GetAddresses() []peers.Entry {
	return n.book.Entries()
}

// Registry returns the prometheus registry holding the node metrics.
func (n *Node) Registry() *prometheus.Registry {
	return n.metrics.registry
}
