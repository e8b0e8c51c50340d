package share

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/params"
	"github.com/mosaicnetworks/sharechain/src/wire"
)

// memChain is a Chain over a plain map.
type memChain map[chainhash.Hash]*Share

func (c memChain) Get(h chainhash.Hash) *Share {
	return c[h]
}

func (c memChain) HeightAndLast(h chainhash.Hash) (int, *chainhash.Hash) {
	n := 0
	for cur := &h; cur != nil; {
		s := c[*cur]
		if s == nil {
			return n, cur
		}
		n++
		cur = s.PreviousHash()
	}
	return n, nil
}

func (c memChain) add(s *Share) {
	c[s.Hash()] = s
}

var (
	testParams = &params.RegTest
	testEpoch  = time.Unix(1700000000, 0)
	scriptA    = []byte{0x51}
	scriptB    = []byte{0x52}
)

func testRequest(prev *chainhash.Hash, script []byte, ts time.Time) *TemplateRequest {
	return &TemplateRequest{
		PreviousShare: prev,
		NewScript:     script,
		Subsidy:       50 * 1e8,
		Nonce:         []byte{7},
		BlockVersion:  2,
		PreviousBlock: chainhash.DoubleHashH([]byte("tip")),
		BlockBits:     0x207fffff,
		Timestamp:     ts,
	}
}

// mine solves a share on top of prev and adds it to the chain.
func mine(t *testing.T, c memChain, prev *chainhash.Hash, script []byte, ts time.Time) *Share {
	t.Helper()
	tmpl, err := NewTemplate(c, testParams, testRequest(prev, script, ts))
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	s, err := tmpl.Solve(1 << 16)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	c.add(s)
	return s
}

// mineChain mines n shares, one second apart, alternating payout scripts.
func mineChain(t *testing.T, c memChain, n int) []*Share {
	t.Helper()
	var res []*Share
	var prev *chainhash.Hash
	for i := 0; i < n; i++ {
		script := scriptA
		if i%2 == 1 {
			script = scriptB
		}
		s := mine(t, c, prev, script, testEpoch.Add(time.Duration(i)*time.Second))
		h := s.Hash()
		prev = &h
		res = append(res, s)
	}
	return res
}

func TestMinedChainVerifies(t *testing.T) {
	c := memChain{}
	shares := mineChain(t, c, 2*testParams.TargetLookbehind)

	now := testEpoch.Add(time.Hour)
	for i, s := range shares {
		if err := s.Check(c, testParams, now); err != nil {
			t.Fatalf("share %d: %v", i, err)
		}
	}
}

func TestShareThroughWire(t *testing.T) {
	c := memChain{}
	shares := mineChain(t, c, 3)
	orig := shares[2]

	codec := wire.NewCodec(testParams.Magic)
	var buf bytes.Buffer
	if err := codec.WriteMessage(&buf, &wire.MsgShares{Shares: []*wire.RawShare{orig.ToWire()}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	msg, err := codec.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	got, err := FromWire(msg.(*wire.MsgShares).Shares[0])
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got.Hash() != orig.Hash() {
		t.Fatalf("hash %s, want %s", got.Hash(), orig.Hash())
	}
	if err := got.Check(c, testParams, testEpoch.Add(time.Hour)); err != nil {
		t.Fatalf("decoded share does not verify: %v", err)
	}
}

func TestFullTransactionProof(t *testing.T) {
	c := memChain{}
	root := mine(t, c, nil, scriptA, testEpoch)
	rootHash := root.Hash()

	req := testRequest(&rootHash, scriptB, testEpoch.Add(time.Second))
	for i := 0; i < 3; i++ {
		tx := btcwire.NewMsgTx(1)
		tx.LockTime = uint32(i)
		tx.AddTxOut(btcwire.NewTxOut(int64(i), scriptA))
		req.Transactions = append(req.Transactions, tx)
	}
	tmpl, err := NewTemplate(c, testParams, req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	s, err := tmpl.Solve(1 << 16)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	full := *s
	full.MerkleBranch = nil
	full.OtherTxs = req.Transactions
	if err := full.Check(c, testParams, testEpoch.Add(time.Hour)); err != nil {
		t.Fatalf("full proof rejected: %v", err)
	}

	full.OtherTxs = req.Transactions[:2]
	if err := full.Check(c, testParams, testEpoch.Add(time.Hour)); !common.IsFailure(err, common.ValidationFailure) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	if block := tmpl.Block(s); len(block.Transactions) != 4 {
		t.Fatalf("block has %d transactions", len(block.Transactions))
	}
}

func TestCheckRejects(t *testing.T) {
	c := memChain{}
	shares := mineChain(t, c, 14)
	good := shares[13]
	now := testEpoch.Add(time.Hour)

	rehash := func(s Share) *Share {
		s.hash = s.Header.BlockHash()
		return &s
	}

	cases := []struct {
		name string
		s    *Share
		now  time.Time
	}{
		{
			name: "timestamp at median",
			s: func() *Share {
				s := *good
				s.Header.Timestamp = MinTimestamp(c, good.PreviousHash()).Add(-time.Second)
				return rehash(s)
			}(),
			now: now,
		},
		{
			name: "timestamp in the future",
			s:    good,
			now:  good.Timestamp().Add(-MaxFutureDrift - time.Second),
		},
		{
			name: "bad merkle branch",
			s: func() *Share {
				s := *good
				s.MerkleBranch = append([]chainhash.Hash{{1}}, s.MerkleBranch...)
				return rehash(s)
			}(),
			now: now,
		},
		{
			name: "different payout script",
			s: func() *Share {
				s := *good
				s.NewScript = []byte{0x53}
				return rehash(s)
			}(),
			now: now,
		},
		{
			name: "wrong target",
			s: func() *Share {
				s := *good
				s.Info.Target2 = 0x1f00ffff
				return rehash(s)
			}(),
			now: now,
		},
		{
			name: "unknown parent",
			s: func() *Share {
				s := *good
				s.Info.PreviousShareHash = &chainhash.Hash{9}
				return rehash(s)
			}(),
			now: now,
		},
		{
			name: "hash above target",
			s: func() *Share {
				s := *good
				for {
					s.Header.Nonce++
					if r := rehash(s); !r.MeetsShareTarget() {
						return r
					}
				}
			}(),
			now: now,
		},
	}

	for _, tc := range cases {
		err := tc.s.Check(c, testParams, tc.now)
		if !common.IsFailure(err, common.ValidationFailure) {
			t.Fatalf("%s: expected validation failure, got %v", tc.name, err)
		}
	}
}

func TestCheckWork(t *testing.T) {
	c := memChain{}
	good := mineChain(t, c, 2)[1]
	if err := good.CheckWork(testParams); err != nil {
		t.Fatalf("solved share: %v", err)
	}

	unsolved := *good
	for {
		unsolved.Header.Nonce++
		unsolved.hash = unsolved.Header.BlockHash()
		if !unsolved.MeetsShareTarget() {
			break
		}
	}
	if err := unsolved.CheckWork(testParams); !common.IsFailure(err, common.ValidationFailure) {
		t.Fatalf("hash above target: expected validation failure, got %v", err)
	}

	// any hash meets this target, but it is easier than the network allows
	easy := *good
	easy.Info.Target2 = 0x2100ffff
	if !easy.MeetsShareTarget() {
		t.Fatalf("hash %s above target %08x", easy.hash, easy.Info.Target2)
	}
	if err := easy.CheckWork(testParams); !common.IsFailure(err, common.ValidationFailure) {
		t.Fatalf("target above maximum: expected validation failure, got %v", err)
	}
	if err := easy.Check(c, testParams, testEpoch.Add(time.Hour)); !common.IsFailure(err, common.ValidationFailure) {
		t.Fatalf("Check: expected validation failure, got %v", err)
	}
}

func TestFromWireLimits(t *testing.T) {
	raw := &wire.RawShare{Subsidy: 1 << 62}
	if _, err := FromWire(raw); !common.IsFailure(err, common.ValidationFailure) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	raw = &wire.RawShare{MerkleBranch: make([]chainhash.Hash, wire.MaxMerkleBranch+1)}
	if _, err := FromWire(raw); err == nil {
		t.Fatalf("expected error for long branch")
	}
}
