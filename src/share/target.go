package share

import (
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/params"
)

var (
	bigOne      = big.NewInt(1)
	oneLsh256   = new(big.Int).Lsh(bigOne, 256)
	bigByteBase = big.NewInt(256)
)

// PoolAttemptsPerSecond estimates the pool hash rate from the n shares
// ending at start. The oldest share only opens the time span, its attempts
// were made before it. The span is at least one second.
func PoolAttemptsPerSecond(chain Chain, start *chainhash.Hash, n int) *big.Int {
	window := Walk(chain, start, n)
	if len(window) < 2 {
		return new(big.Int)
	}

	attempts := new(big.Int)
	for _, s := range window[:len(window)-1] {
		attempts.Add(attempts, s.Attempts())
	}

	span := window[0].Timestamp().Unix() - window[len(window)-1].Timestamp().Unix()
	if span < 1 {
		span = 1
	}
	return attempts.Div(attempts, big.NewInt(span))
}

// NextTarget returns target2, in compact form, for a share built on top of
// prev. Short chains use the easiest target. Otherwise the ideal target for
// the estimated pool rate is clipped to RetargetClip around the parent
// target, clipped to the easiest target, and rounded to the nearest compact
// value that stays inside those bounds.
func NextTarget(chain Chain, prev *chainhash.Hash, p *params.Params) uint32 {
	if prev == nil || depth(chain, prev, p.TargetLookbehind) < p.TargetLookbehind {
		return p.MaxTargetBits
	}
	parent := chain.Get(*prev)
	if parent == nil {
		return p.MaxTargetBits
	}

	maxTarget := p.MaxTarget()
	aps := PoolAttemptsPerSecond(chain, prev, p.TargetLookbehind)

	pre := new(big.Int).Set(maxTarget)
	if aps.Sign() > 0 {
		div := new(big.Int).Mul(big.NewInt(int64(p.SharePeriod.Seconds())), aps)
		if div.Sign() > 0 {
			pre.Div(oneLsh256, div)
			pre.Sub(pre, bigOne)
		}
	}

	lo, hi := clipBounds(parent.Target(), p.RetargetClip)
	if hi.Cmp(maxTarget) > 0 {
		hi.Set(maxTarget)
	}

	if pre.Cmp(lo) < 0 {
		pre.Set(lo)
	}
	if pre.Cmp(hi) > 0 {
		pre.Set(hi)
	}
	if pre.Sign() <= 0 {
		pre.Set(bigOne)
	}
	return roundCompact(pre, lo, hi)
}

// clipBounds returns [ceil(t*(1-c)), floor(t*(1+c))].
func clipBounds(t *big.Int, c params.Fraction) (*big.Int, *big.Int) {
	den := big.NewInt(c.Denom)

	lo := new(big.Int).Mul(t, big.NewInt(c.Denom-c.Num))
	lo.Add(lo, new(big.Int).Sub(den, bigOne))
	lo.Div(lo, den)

	hi := new(big.Int).Mul(t, big.NewInt(c.Denom+c.Num))
	hi.Div(hi, den)
	return lo, hi
}

// roundCompact encodes target as the nearest compact value, preferring
// candidates inside [lo, hi]. BigToCompact truncates the mantissa, so the
// only candidates are the truncated value and the next representable one.
func roundCompact(target, lo, hi *big.Int) uint32 {
	downBits := blockchain.BigToCompact(target)
	down := blockchain.CompactToBig(downBits)
	if down.Cmp(target) == 0 {
		return downBits
	}

	up := new(big.Int).Add(down, compactUnit(downBits))
	upBits := blockchain.BigToCompact(up)
	up = blockchain.CompactToBig(upBits)

	downOK := down.Cmp(lo) >= 0
	upOK := up.Cmp(hi) <= 0
	switch {
	case downOK && upOK:
		dDown := new(big.Int).Sub(target, down)
		dUp := new(big.Int).Sub(up, target)
		if dUp.Cmp(dDown) < 0 {
			return upBits
		}
		return downBits
	case upOK:
		return upBits
	default:
		return downBits
	}
}

// compactUnit is the value of the least significant mantissa step at the
// exponent of bits.
func compactUnit(bits uint32) *big.Int {
	exponent := int64(bits >> 24)
	if exponent <= 3 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(bigByteBase, big.NewInt(exponent-3), nil)
}
