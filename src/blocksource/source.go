// Package blocksource talks to the parent chain: it fetches block templates
// to build shares on and maps block hashes to heights for scoring.
package blocksource

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
)

// ErrUnknownBlock is returned by BlockHeight for blocks the source does not
// know.
var ErrUnknownBlock = errors.New("unknown block")

// BlockTemplate is the work offered by the parent chain.
type BlockTemplate struct {
	Version       int32
	PreviousBlock chainhash.Hash
	Bits          uint32
	Height        int64
	Subsidy       int64
	Transactions  []*btcwire.MsgTx
	Time          time.Time
}

// Source is the block-source oracle.
type Source interface {
	// PendingTransactionsAndTarget returns a template for the next block.
	PendingTransactionsAndTarget(ctx context.Context) (*BlockTemplate, error)

	// ChainHeight returns the height of the best block.
	ChainHeight(ctx context.Context) (int64, error)

	// BlockHeight returns the height of a block.
	BlockHeight(ctx context.Context, block chainhash.Hash) (int64, error)
}
