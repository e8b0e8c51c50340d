package tracker

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/wire"
)

// GetShares answers a getshares request: for every known hash, the share and
// up to parents of its ancestors, stopping before any hash in stops. parents
// is clamped so the response holds at most wire.MaxGetSharesHashes shares.
func (t *Tracker) GetShares(hashes []chainhash.Hash, parents uint64, stops []chainhash.Hash) []*share.Share {
	if len(hashes) == 0 {
		return nil
	}
	limit := uint64(wire.MaxGetSharesHashes / len(hashes))
	if limit == 0 {
		limit = 1
	}
	if parents >= limit {
		parents = limit - 1
	}

	stop := make(hashSet, len(stops))
	for _, h := range stops {
		stop[h] = struct{}{}
	}

	var res []*share.Share
	for i := range hashes {
		for _, s := range share.Walk(t, &hashes[i], int(parents)+1) {
			if _, ok := stop[s.Hash()]; ok {
				break
			}
			if len(res) >= wire.MaxGetSharesHashes {
				return res
			}
			res = append(res, s)
		}
	}
	return res
}
