package share

import (
	"bytes"
	"math"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/params"
	"github.com/mosaicnetworks/sharechain/src/wire"
)

// PayoutWindow is the number of ancestors of prev that take part in payouts.
func PayoutWindow(chain Chain, prev *chainhash.Hash, p *params.Params) int {
	return depth(chain, prev, p.ChainLength)
}

// PreviousSharesHash commits to the hashes of the n shares ending at prev. It
// is the double SHA-256 of their compressed list encoding.
func PreviousSharesHash(chain Chain, prev *chainhash.Hash, n int) chainhash.Hash {
	window := Walk(chain, prev, n)
	hashes := make([]chainhash.Hash, len(window))
	for i, s := range window {
		hashes[i] = s.Hash()
	}

	var buf bytes.Buffer
	// writes to a bytes.Buffer do not fail
	_ = wire.WriteCompressedHashes(&buf, hashes)
	return chainhash.DoubleHashH(buf.Bytes())
}

// CoinbaseScript is the network identifier followed by the share info.
func CoinbaseScript(info *wire.ShareInfo, p *params.Params) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(p.Identifier[:])
	if err := info.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type payout struct {
	script []byte
	amount int64
	isNew  bool
}

// GenerationTx rebuilds the generation transaction of a share from its info.
// The payout window covers PayoutWindow ancestors of the parent, weighted
// by attempts and capped at Spread blocks' worth of attempts at blockBits.
// The new share counts for its own attempts, capped the same way.
//
// Outputs are ordered by (is new script, amount, script) so the new share's
// script is always last. Zero amounts are omitted.
func GenerationTx(chain Chain, info *wire.ShareInfo, newScript []byte, subsidy int64, blockBits uint32, p *params.Params) (*btcwire.MsgTx, error) {
	prev := info.PreviousShareHash
	n := PayoutWindow(chain, prev, p)

	if want := PreviousSharesHash(chain, prev, n); want != info.PreviousSharesHash {
		return nil, common.Failuref(common.ValidationFailure,
			"previous shares hash %s does not match %s", info.PreviousSharesHash, want)
	}

	maxWeight := new(big.Int).Mul(big.NewInt(p.Spread), blockchain.CalcWork(blockBits))
	thisWeight := blockchain.CalcWork(info.Target2)
	if thisWeight.Cmp(maxWeight) > 0 {
		thisWeight.Set(maxWeight)
	}
	ws := CumulativeWeights(chain, prev, n, new(big.Int).Sub(maxWeight, thisWeight))
	ws.Add(newScript, thisWeight)

	amounts := PayoutAmounts(ws, subsidy, p)

	outs := make([]payout, 0, len(amounts))
	for script, amount := range amounts {
		if amount == 0 {
			continue
		}
		outs = append(outs, payout{
			script: []byte(script),
			amount: amount,
			isNew:  script == string(newScript),
		})
	}
	sort.Slice(outs, func(i, j int) bool {
		a, b := outs[i], outs[j]
		if a.isNew != b.isNew {
			return b.isNew
		}
		if a.amount != b.amount {
			return a.amount < b.amount
		}
		return bytes.Compare(a.script, b.script) < 0
	})

	cbScript, err := CoinbaseScript(info, p)
	if err != nil {
		return nil, common.NewFailure(common.ValidationFailure, err)
	}

	tx := btcwire.NewMsgTx(1)
	tx.AddTxIn(&btcwire.TxIn{
		PreviousOutPoint: btcwire.OutPoint{Index: math.MaxUint32},
		SignatureScript:  cbScript,
		Sequence:         math.MaxUint32,
	})
	for _, o := range outs {
		tx.AddTxOut(btcwire.NewTxOut(o.amount, o.script))
	}
	return tx, nil
}
