package share

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Chain gives read access to the known shares.
type Chain interface {
	// Get returns the share with the given hash, or nil when unknown.
	Get(hash chainhash.Hash) *Share

	// HeightAndLast returns the number of known shares walking back from
	// hash (hash included), and the first ancestor hash that is not known,
	// nil when the walk reached the first share of the chain.
	HeightAndLast(hash chainhash.Hash) (int, *chainhash.Hash)
}

// Walk returns at most n known shares, starting with start and following the
// parent links. It stops at the first unknown hash.
func Walk(chain Chain, start *chainhash.Hash, n int) []*Share {
	var res []*Share
	for cur := start; cur != nil && len(res) < n; {
		s := chain.Get(*cur)
		if s == nil {
			break
		}
		res = append(res, s)
		cur = s.PreviousHash()
	}
	return res
}

// depth is the number of known shares from h, 0 for the empty chain, counted
// up to limit.
func depth(chain Chain, h *chainhash.Hash, limit int) int {
	n := 0
	for cur := h; cur != nil && n < limit; n++ {
		s := chain.Get(*cur)
		if s == nil {
			break
		}
		cur = s.PreviousHash()
	}
	return n
}
