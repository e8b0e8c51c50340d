package share

import (
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// fakeChain links n unmined shares at the given target, with timestamps
// produced by at(i).
func fakeChain(n int, bits uint32, at func(i int) time.Time) (memChain, *chainhash.Hash) {
	c := memChain{}
	var prev *chainhash.Hash
	for i := 0; i < n; i++ {
		s := &Share{}
		s.Header.Nonce = uint32(i)
		s.Header.Timestamp = at(i)
		s.Info.PreviousShareHash = prev
		s.Info.Target2 = bits
		s.hash = s.Header.BlockHash()
		c.add(s)
		h := s.Hash()
		prev = &h
	}
	return c, prev
}

func withinClip(t *testing.T, parentBits, bits uint32) {
	t.Helper()
	parent := blockchain.CompactToBig(parentBits)
	got := blockchain.CompactToBig(bits)

	diff := new(big.Int).Sub(got, parent)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(testParams.RetargetClip.Denom))
	limit := new(big.Int).Mul(parent, big.NewInt(testParams.RetargetClip.Num))
	require.True(t, diff.Cmp(limit) <= 0, "target %08x moved more than the clip from %08x", bits, parentBits)
}

func TestShortChainUsesMaxTarget(t *testing.T) {
	require.Equal(t, testParams.MaxTargetBits, NextTarget(memChain{}, nil, testParams))

	c, tip := fakeChain(testParams.TargetLookbehind-1, 0x1f00ffff, func(i int) time.Time {
		return testEpoch.Add(time.Duration(i) * time.Second)
	})
	require.Equal(t, testParams.MaxTargetBits, NextTarget(c, tip, testParams))
}

func TestRetargetHarder(t *testing.T) {
	const parentBits = 0x1f00ffff
	// every share in the same second: far above the desired rate
	c, tip := fakeChain(testParams.TargetLookbehind, parentBits, func(int) time.Time {
		return testEpoch
	})

	bits := NextTarget(c, tip, testParams)
	withinClip(t, parentBits, bits)
	require.True(t, blockchain.CompactToBig(bits).Cmp(blockchain.CompactToBig(parentBits)) < 0)
}

func TestRetargetEasier(t *testing.T) {
	const parentBits = 0x1f00ffff
	c, tip := fakeChain(testParams.TargetLookbehind, parentBits, func(i int) time.Time {
		return testEpoch.Add(time.Duration(i) * time.Hour)
	})

	bits := NextTarget(c, tip, testParams)
	withinClip(t, parentBits, bits)
	require.True(t, blockchain.CompactToBig(bits).Cmp(blockchain.CompactToBig(parentBits)) > 0)
}

func TestRetargetNeverExceedsMax(t *testing.T) {
	c, tip := fakeChain(testParams.TargetLookbehind, testParams.MaxTargetBits, func(i int) time.Time {
		return testEpoch.Add(time.Duration(i) * time.Hour)
	})
	require.Equal(t, testParams.MaxTargetBits, NextTarget(c, tip, testParams))
}

func TestRetargetClipProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	parents := []uint32{0x1f00ffff, 0x1e123456, 0x1d00ffff, 0x207fffff, 0x1f7fffff}

	for i := 0; i < 200; i++ {
		parentBits := parents[rng.Intn(len(parents))]
		step := time.Duration(rng.Int63n(int64(10*time.Minute))) + time.Millisecond
		c, tip := fakeChain(testParams.TargetLookbehind+rng.Intn(4), parentBits, func(i int) time.Time {
			return testEpoch.Add(time.Duration(i) * step)
		})

		bits := NextTarget(c, tip, testParams)
		withinClip(t, parentBits, bits)
		require.True(t, blockchain.CompactToBig(bits).Cmp(testParams.MaxTarget()) <= 0)
	}
}

func TestRoundCompactPicksNearest(t *testing.T) {
	// 0x1d010000 plus 1.6 mantissa units rounds up to 0x1d010002.
	base := blockchain.CompactToBig(0x1d010000)
	unit := compactUnit(0x1d010000)
	target := new(big.Int).Add(base, new(big.Int).Div(new(big.Int).Mul(unit, big.NewInt(16)), big.NewInt(10)))

	lo := new(big.Int).Sub(base, unit)
	hi := new(big.Int).Add(base, new(big.Int).Mul(unit, big.NewInt(4)))
	require.Equal(t, uint32(0x1d010002), roundCompact(target, lo, hi))

	// the nearer value is outside the window
	hi = new(big.Int).Add(base, unit)
	require.Equal(t, uint32(0x1d010001), roundCompact(target, lo, hi))
}

func TestPoolAttemptsSkipOldest(t *testing.T) {
	const bits = 0x1f00ffff
	c, tip := fakeChain(3, bits, func(i int) time.Time {
		return testEpoch.Add(time.Duration(i) * 10 * time.Second)
	})

	// two intervals of ten seconds, each closed by one share
	want := new(big.Int).Mul(blockchain.CalcWork(bits), big.NewInt(2))
	want.Div(want, big.NewInt(20))
	require.Equal(t, 0, want.Cmp(PoolAttemptsPerSecond(c, tip, 3)))

	require.Equal(t, 0, PoolAttemptsPerSecond(c, tip, 1).Sign())
}

// countingChain counts lookups.
type countingChain struct {
	memChain
	gets int
}

func (c *countingChain) Get(h chainhash.Hash) *Share {
	c.gets++
	return c.memChain.Get(h)
}

func TestWindowsAreBounded(t *testing.T) {
	mem, tip := fakeChain(3*testParams.ChainLength, 0x1f00ffff, func(i int) time.Time {
		return testEpoch.Add(time.Duration(i) * time.Second)
	})
	c := &countingChain{memChain: mem}

	require.Equal(t, testParams.ChainLength, PayoutWindow(c, tip, testParams))
	require.LessOrEqual(t, c.gets, testParams.ChainLength)

	c.gets = 0
	NextTarget(c, tip, testParams)
	require.LessOrEqual(t, c.gets, 3*testParams.TargetLookbehind)
}
