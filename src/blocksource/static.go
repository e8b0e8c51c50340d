package blocksource

import (
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var errNoTemplate = errors.New("no template set")

// Static is a Source whose answers are set by hand.
type Static struct {
	sync.RWMutex
	template *BlockTemplate
	height   int64
	blocks   map[chainhash.Hash]int64
}

// NewStatic returns an empty Static source.
func NewStatic() *Static {
	return &Static{blocks: make(map[chainhash.Hash]int64)}
}

// SetTemplate sets the template returned by PendingTransactionsAndTarget.
func (s *Static) SetTemplate(t *BlockTemplate) {
	s.Lock()
	defer s.Unlock()
	s.template = t
}

// AddBlock records a block at height and raises the chain height if needed.
func (s *Static) AddBlock(block chainhash.Hash, height int64) {
	s.Lock()
	defer s.Unlock()
	s.blocks[block] = height
	if height > s.height {
		s.height = height
	}
}

// PendingTransactionsAndTarget implements Source.
func (s *Static) PendingTransactionsAndTarget(ctx context.Context) (*BlockTemplate, error) {
	s.RLock()
	defer s.RUnlock()
	if s.template == nil {
		return nil, errNoTemplate
	}
	t := *s.template
	return &t, nil
}

// ChainHeight implements Source.
func (s *Static) ChainHeight(ctx context.Context) (int64, error) {
	s.RLock()
	defer s.RUnlock()
	return s.height, nil
}

// BlockHeight implements Source.
func (s *Static) BlockHeight(ctx context.Context, block chainhash.Hash) (int64, error) {
	s.RLock()
	defer s.RUnlock()
	h, ok := s.blocks[block]
	if !ok {
		return 0, ErrUnknownBlock
	}
	return h, nil
}
