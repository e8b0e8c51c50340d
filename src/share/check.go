package share

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/params"
)

const (
	// MedianTimeSpan is the number of ancestors whose median timestamp a
	// share must exceed.
	MedianTimeSpan = 11

	// MaxFutureDrift is how far ahead of the local clock a share may be.
	MaxFutureDrift = 2 * time.Hour
)

// MinTimestamp is the earliest timestamp allowed for a child of prev: one
// second after the median of the last MedianTimeSpan shares.
func MinTimestamp(chain Chain, prev *chainhash.Hash) time.Time {
	window := Walk(chain, prev, MedianTimeSpan)
	if len(window) == 0 {
		return time.Unix(0, 0)
	}
	times := make([]time.Time, len(window))
	for i, s := range window {
		times[i] = s.Timestamp()
	}
	return common.MedianTime(times).Add(time.Second)
}

func invalid(format string, args ...interface{}) error {
	return common.Failuref(common.ValidationFailure, format, args...)
}

// CheckWork verifies the proof of work alone: target2 is no easier than the
// network maximum and the header hash meets it. It needs no ancestors, so it
// runs before a received share is stored.
func (s *Share) CheckWork(p *params.Params) error {
	if s.Target().Cmp(p.MaxTarget()) > 0 {
		return invalid("target2 %08x easier than the maximum", s.Info.Target2)
	}
	if !s.MeetsShareTarget() {
		return invalid("hash %s above target2 %08x", s.hash, s.Info.Target2)
	}
	return nil
}

// Check verifies the share against its known ancestors. The parent must be
// known unless the share is the first of its chain. Errors are
// ValidationFailures.
func (s *Share) Check(chain Chain, p *params.Params, now time.Time) error {
	if err := s.CheckWork(p); err != nil {
		return err
	}

	prev := s.PreviousHash()
	if prev != nil {
		if chain.Get(*prev) == nil {
			return invalid("parent %s unknown", prev)
		}
		if earliest := MinTimestamp(chain, prev); s.Timestamp().Before(earliest) {
			return invalid("timestamp %v not after the median of its ancestors", s.Timestamp())
		}
	}

	if s.Timestamp().After(now.Add(MaxFutureDrift)) {
		return invalid("timestamp %v too far in the future", s.Timestamp())
	}

	if want := NextTarget(chain, prev, p); s.Info.Target2 != want {
		return invalid("target2 %08x, expected %08x", s.Info.Target2, want)
	}

	gentx, err := GenerationTx(chain, &s.Info, s.NewScript, s.Subsidy, s.Header.Bits, p)
	if err != nil {
		return err
	}

	var root chainhash.Hash
	if s.OtherTxs != nil {
		txs := make([]*btcwire.MsgTx, 0, len(s.OtherTxs)+1)
		txs = append(txs, gentx)
		txs = append(txs, s.OtherTxs...)
		root = MerkleRoot(txs)
	} else {
		root = MerkleRootFromBranch(gentx.TxHash(), s.MerkleBranch)
	}
	if root != s.Header.MerkleRoot {
		return invalid("merkle root %s does not match the generation transaction", s.Header.MerkleRoot)
	}
	return nil
}
