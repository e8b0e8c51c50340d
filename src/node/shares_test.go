package node

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/net"
	"github.com/mosaicnetworks/sharechain/src/params"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/tracker"
	"github.com/mosaicnetworks/sharechain/src/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orphans returns n solved shares, each on top of a different parent that is
// not part of the result.
func orphans(t *testing.T, n int) []*wire.RawShare {
	t.Helper()
	chain := tracker.NewTracker(&params.RegTest, nil)
	now := time.Now()

	solve := func(prev *chainhash.Hash, i int, ts time.Time) *share.Share {
		tmpl, err := share.NewTemplate(chain, &params.RegTest, &share.TemplateRequest{
			PreviousShare: prev,
			NewScript:     testScript,
			Subsidy:       50 * 1e8,
			Nonce:         []byte{byte(i), byte(i >> 8)},
			BlockVersion:  2,
			PreviousBlock: testTip,
			BlockBits:     0x207fffff,
			Timestamp:     ts,
		})
		require.NoError(t, err)
		s, err := tmpl.Solve(1 << 16)
		require.NoError(t, err)
		_, err = chain.Add(s, tracker.LocalPeer)
		require.NoError(t, err)
		return s
	}

	res := make([]*wire.RawShare, n)
	for i := range res {
		root := solve(nil, i, now)
		h := root.Hash()
		res[i] = solve(&h, i, now.Add(time.Second)).ToWire()
	}
	return res
}

func connectedPair(t *testing.T) (*Node, *Node) {
	t.Helper()
	network := net.NewInmemNetwork()

	b := newTestNode(t, network, addrB, nil, func(c *Config) { c.DesiredOutgoing = 0 })
	a := newTestNode(t, network, addrA, nil, func(c *Config) { c.Seeds = []peers.Addr{addrB} })
	b.RunAsync()
	a.RunAsync()

	waitFor(t, "handshake", func() bool {
		return peerCount(t, a) == 1 && peerCount(t, b) == 1
	})
	return a, b
}

func TestUnsolvedSharesAreNotKept(t *testing.T) {
	a, b := connectedPair(t)
	defer a.Shutdown()
	defer b.Shutdown()

	var junk []*wire.RawShare
	for _, raw := range orphans(t, 4) {
		s, err := share.FromWire(raw)
		require.NoError(t, err)
		for s.MeetsShareTarget() {
			raw.Header.Nonce++
			s, err = share.FromWire(raw)
			require.NoError(t, err)
		}
		junk = append(junk, raw)
	}

	kept := onLoop(t, b, func() int {
		b.onShares(b.peers.All()[0], &wire.MsgShares{Shares: junk})
		return b.tracker.Len()
	})
	assert.Equal(t, 0, kept)
	assert.Equal(t, 0, onLoop(t, b, func() int { return b.desired.Len() }))
	assert.Equal(t, 1, peerCount(t, b))
}

func TestManyMissingParentsKeepPeers(t *testing.T) {
	a, b := connectedPair(t)
	defer a.Shutdown()
	defer b.Shutdown()

	const n = 3 * maxDesiredPerThink
	msg := &wire.MsgShares{Shares: orphans(t, n)}

	requested := onLoop(t, b, func() int {
		b.onShares(b.peers.All()[0], msg)
		return b.desired.Len()
	})
	assert.Equal(t, maxDesiredPerThink, requested)
	assert.Equal(t, n, onLoop(t, b, func() int { return b.tracker.Len() }))

	// later steps ask for the rest, one message at a time
	waitFor(t, "all parents requested", func() bool {
		return onLoop(t, b, func() int { return b.desired.Len() }) == n
	})
	time.Sleep(10 * b.conf.ThinkInterval)

	assert.Equal(t, 1, peerCount(t, a))
	assert.Equal(t, 1, peerCount(t, b))
	p := onLoop(t, b, func() *net.Peer { return b.peers.All()[0] })
	assert.NoError(t, p.Err())
}
