package share

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/params"
)

// Weights is the proof-of-work attributed to each payout script.
type Weights struct {
	ByScript map[string]*big.Int
	Total    *big.Int
}

// NewWeights returns empty Weights.
func NewWeights() *Weights {
	return &Weights{
		ByScript: make(map[string]*big.Int),
		Total:    new(big.Int),
	}
}

// Add credits w to script.
func (ws *Weights) Add(script []byte, w *big.Int) {
	cur, ok := ws.ByScript[string(script)]
	if !ok {
		cur = new(big.Int)
		ws.ByScript[string(script)] = cur
	}
	cur.Add(cur, w)
	ws.Total.Add(ws.Total, w)
}

// CumulativeWeights sums the attempts of at most maxShares shares ending at
// start, per payout script. The total never exceeds desired: the share that
// crosses it is credited with the remainder only and the walk stops there.
func CumulativeWeights(chain Chain, start *chainhash.Hash, maxShares int, desired *big.Int) *Weights {
	ws := NewWeights()
	if desired.Sign() <= 0 {
		return ws
	}
	for _, s := range Walk(chain, start, maxShares) {
		w := s.Attempts()
		left := new(big.Int).Sub(desired, ws.Total)
		if w.Cmp(left) >= 0 {
			ws.Add(s.NewScript, left)
			break
		}
		ws.Add(s.NewScript, w)
	}
	return ws
}

// PayoutAmounts splits subsidy across the weighted scripts. The pool fee and
// every rounding remainder go to the pool script, so the amounts always add
// up to subsidy exactly.
func PayoutAmounts(ws *Weights, subsidy int64, p *params.Params) map[string]int64 {
	amounts := make(map[string]int64, len(ws.ByScript)+1)

	var sum int64
	if ws.Total.Sign() > 0 {
		keep := new(big.Int).Mul(big.NewInt(subsidy), big.NewInt(p.PoolFee.Denom-p.PoolFee.Num))
		div := new(big.Int).Mul(big.NewInt(p.PoolFee.Denom), ws.Total)
		for script, w := range ws.ByScript {
			a := new(big.Int).Mul(keep, w)
			a.Div(a, div)
			amounts[script] = a.Int64()
			sum += a.Int64()
		}
	}

	amounts[string(p.PoolScript)] += subsidy - sum
	return amounts
}
