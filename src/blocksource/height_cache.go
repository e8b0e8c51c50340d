package blocksource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHeightCacheSize is the number of block heights remembered.
	DefaultHeightCacheSize = 10000

	fetchQueueSize = 256
)

// HeightCache answers block height queries without blocking. Unknown blocks
// report height 0 and are looked up in the background, so the answer improves
// on a later call.
type HeightCache struct {
	source Source
	logger *logrus.Entry

	cache *lru.Cache[chainhash.Hash, int64]
	best  int64

	pendingLock sync.Mutex
	pending     map[chainhash.Hash]struct{}
	queue       chan chainhash.Hash
}

// NewHeightCache returns a cache over source holding up to size heights.
func NewHeightCache(source Source, size int, logger *logrus.Entry) (*HeightCache, error) {
	if size <= 0 {
		size = DefaultHeightCacheSize
	}
	cache, err := lru.New[chainhash.Hash, int64](size)
	if err != nil {
		return nil, err
	}
	return &HeightCache{
		source:  source,
		logger:  logger,
		cache:   cache,
		pending: make(map[chainhash.Hash]struct{}),
		queue:   make(chan chainhash.Hash, fetchQueueSize),
	}, nil
}

// Height returns the height of block, or 0 while it is unknown.
func (c *HeightCache) Height(block chainhash.Hash) int64 {
	if h, ok := c.cache.Get(block); ok {
		return h
	}

	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()
	if _, ok := c.pending[block]; ok {
		return 0
	}
	select {
	case c.queue <- block:
		c.pending[block] = struct{}{}
	default:
	}
	return 0
}

// BestHeight returns the last chain height observed.
func (c *HeightCache) BestHeight() int64 {
	return atomic.LoadInt64(&c.best)
}

// Refresh polls the chain height once.
func (c *HeightCache) Refresh(ctx context.Context) error {
	h, err := c.source.ChainHeight(ctx)
	if err != nil {
		return err
	}
	atomic.StoreInt64(&c.best, h)
	return nil
}

// Run fetches queued heights and refreshes the chain height every interval
// until ctx is done.
func (c *HeightCache) Run(ctx context.Context, interval time.Duration) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.WithError(err).Debug("Refreshing chain height")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case block := <-c.queue:
			c.fetch(ctx, block)
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.WithError(err).Debug("Refreshing chain height")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *HeightCache) fetch(ctx context.Context, block chainhash.Hash) {
	h, err := c.source.BlockHeight(ctx, block)

	c.pendingLock.Lock()
	delete(c.pending, block)
	c.pendingLock.Unlock()

	if err != nil {
		c.logger.WithError(err).WithField("block", block).Debug("Fetching block height")
		return
	}
	c.cache.Add(block, h)
}
