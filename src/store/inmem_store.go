package store

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
)

// InmemStore keeps everything in memory. It backs tests and nodes running
// without a data directory, and caches what BadgerStore already wrote.
type InmemStore struct {
	sync.Mutex
	shares  map[chainhash.Hash]*share.Share
	order   []chainhash.Hash
	entries []peers.Entry
}

// NewInmemStore returns an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		shares: make(map[chainhash.Hash]*share.Share),
	}
}

// LoadAddressBook implements Store.
func (s *InmemStore) LoadAddressBook() ([]peers.Entry, error) {
	s.Lock()
	defer s.Unlock()

	res := make([]peers.Entry, len(s.entries))
	copy(res, s.entries)
	return res, nil
}

// SaveAddressBook implements Store.
func (s *InmemStore) SaveAddressBook(entries []peers.Entry) error {
	s.Lock()
	defer s.Unlock()

	s.entries = make([]peers.Entry, len(entries))
	copy(s.entries, entries)
	return nil
}

// LoadShares implements Store. Shares come back in the order they were
// first saved.
func (s *InmemStore) LoadShares() ([]*share.Share, error) {
	s.Lock()
	defer s.Unlock()

	res := make([]*share.Share, 0, len(s.order))
	for _, h := range s.order {
		res = append(res, s.shares[h])
	}
	return res, nil
}

// SaveShares implements Store. Shares already saved are skipped.
func (s *InmemStore) SaveShares(shares []*share.Share) error {
	s.Lock()
	defer s.Unlock()

	s.addShares(shares)
	return nil
}

// addShares returns the shares that were not known yet.
func (s *InmemStore) addShares(shares []*share.Share) []*share.Share {
	var fresh []*share.Share
	for _, sh := range shares {
		h := sh.Hash()
		if _, ok := s.shares[h]; ok {
			continue
		}
		s.shares[h] = sh
		s.order = append(s.order, h)
		fresh = append(fresh, sh)
	}
	return fresh
}

// Has reports whether the share was saved.
func (s *InmemStore) Has(h chainhash.Hash) bool {
	s.Lock()
	defer s.Unlock()

	_, ok := s.shares[h]
	return ok
}

// Close implements Store.
func (s *InmemStore) Close() error {
	return nil
}
