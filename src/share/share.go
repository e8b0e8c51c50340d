package share

import (
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/wire"
)

// Share is a link of the share chain. The fields must not be modified after
// construction: the hash is computed once by FromWire or by Template.Solve.
type Share struct {
	Header       btcwire.BlockHeader
	Info         wire.ShareInfo
	NewScript    []byte
	Subsidy      int64
	MerkleBranch []chainhash.Hash

	// OtherTxs, when non-nil, replaces MerkleBranch as the inclusion proof
	// of the generation transaction.
	OtherTxs []*btcwire.MsgTx

	hash chainhash.Hash
}

// FromWire converts a decoded wire share, checking the limits that do not
// depend on the chain.
func FromWire(raw *wire.RawShare) (*Share, error) {
	switch {
	case raw == nil:
		return nil, common.Failuref(common.ValidationFailure, "nil share")
	case len(raw.NewScript) > wire.MaxNewScriptLen:
		return nil, common.Failuref(common.ValidationFailure, "new script of %d bytes", len(raw.NewScript))
	case len(raw.Info.Nonce) > wire.MaxShareNonceLen:
		return nil, common.Failuref(common.ValidationFailure, "share nonce of %d bytes", len(raw.Info.Nonce))
	case raw.OtherTxs == nil && len(raw.MerkleBranch) > wire.MaxMerkleBranch:
		return nil, common.Failuref(common.ValidationFailure, "merkle branch of %d hashes", len(raw.MerkleBranch))
	case raw.Subsidy > uint64(btcutil.MaxSatoshi):
		return nil, common.Failuref(common.ValidationFailure, "subsidy %d exceeds the money supply", raw.Subsidy)
	}

	s := &Share{
		Header:       raw.Header,
		Info:         raw.Info,
		NewScript:    raw.NewScript,
		Subsidy:      int64(raw.Subsidy),
		MerkleBranch: raw.MerkleBranch,
		OtherTxs:     raw.OtherTxs,
	}
	s.hash = s.Header.BlockHash()
	return s, nil
}

// ToWire returns the wire form of the share.
func (s *Share) ToWire() *wire.RawShare {
	return &wire.RawShare{
		Header:       s.Header,
		Info:         s.Info,
		NewScript:    s.NewScript,
		Subsidy:      uint64(s.Subsidy),
		MerkleBranch: s.MerkleBranch,
		OtherTxs:     s.OtherTxs,
	}
}

// Hash returns the proof-of-work hash of the share header.
func (s *Share) Hash() chainhash.Hash {
	return s.hash
}

// PreviousHash returns the parent hash, nil for the first share of a chain.
func (s *Share) PreviousHash() *chainhash.Hash {
	return s.Info.PreviousShareHash
}

// Timestamp is the header time.
func (s *Share) Timestamp() time.Time {
	return s.Header.Timestamp
}

// Target returns the share target as an integer.
func (s *Share) Target() *big.Int {
	return blockchain.CompactToBig(s.Info.Target2)
}

// Attempts returns the expected number of hashes needed to find a share at
// this target.
func (s *Share) Attempts() *big.Int {
	return blockchain.CalcWork(s.Info.Target2)
}

// MeetsShareTarget reports whether the header hash satisfies target2.
func (s *Share) MeetsShareTarget() bool {
	return blockchain.HashToBig(&s.hash).Cmp(s.Target()) <= 0
}

// MeetsBlockTarget reports whether the share is also a valid block of the
// parent chain.
func (s *Share) MeetsBlockTarget() bool {
	return blockchain.HashToBig(&s.hash).Cmp(blockchain.CompactToBig(s.Header.Bits)) <= 0
}

func (s *Share) String() string {
	return fmt.Sprintf("share %s", s.hash)
}
