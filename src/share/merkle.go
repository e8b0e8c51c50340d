package share

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
)

func merkleStore(txs []*btcwire.MsgTx) []*chainhash.Hash {
	utxs := make([]*btcutil.Tx, len(txs))
	for i, tx := range txs {
		utxs[i] = btcutil.NewTx(tx)
	}
	return blockchain.BuildMerkleTreeStore(utxs, false)
}

// MerkleRoot returns the merkle root of txs.
func MerkleRoot(txs []*btcwire.MsgTx) chainhash.Hash {
	if len(txs) == 0 {
		return chainhash.Hash{}
	}
	store := merkleStore(txs)
	return *store[len(store)-1]
}

// MerkleBranch returns the sibling hashes linking txs[0] to the merkle root,
// leaf level first.
func MerkleBranch(txs []*btcwire.MsgTx) []chainhash.Hash {
	if len(txs) == 0 {
		return nil
	}
	store := merkleStore(txs)

	var branch []chainhash.Hash
	offset := 0
	for width := (len(store) + 1) / 2; width > 1; width /= 2 {
		// A missing right node is hashed with the left one.
		sibling := store[offset+1]
		if sibling == nil {
			sibling = store[offset]
		}
		branch = append(branch, *sibling)
		offset += width
	}
	return branch
}

// MerkleRootFromBranch folds branch into leaf, which is the first
// transaction of the block.
func MerkleRootFromBranch(leaf chainhash.Hash, branch []chainhash.Hash) chainhash.Hash {
	h := leaf
	var buf [chainhash.HashSize * 2]byte
	for i := range branch {
		copy(buf[:chainhash.HashSize], h[:])
		copy(buf[chainhash.HashSize:], branch[i][:])
		h = chainhash.DoubleHashH(buf[:])
	}
	return h
}
