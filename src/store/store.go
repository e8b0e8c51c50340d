// Package store persists the address book and the verified shares between
// runs of the node.
package store

import (
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
)

// Store is the persistence hook of the node.
type Store interface {
	LoadAddressBook() ([]peers.Entry, error)
	SaveAddressBook(entries []peers.Entry) error
	LoadShares() ([]*share.Share, error)
	SaveShares(shares []*share.Share) error
	Close() error
}
