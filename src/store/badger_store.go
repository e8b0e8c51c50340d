package store

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/wire"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	sharePrefix = "share"
	addrPrefix  = "addr"
)

// BadgerStore persists shares and address book entries in a Badger
// database. Shares are stored in their wire encoding, address entries in
// msgpack. An InmemStore remembers which shares are already on disk.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
	logger     *logrus.Entry
}

// NewBadgerStore opens, or creates, the database in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = logger.WithField("prefix", "badger")
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
		logger:     logger,
	}, nil
}

//==============================================================================
//Keys

func shareKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", sharePrefix, hash))
}

func addrKey(addr peers.Addr) []byte {
	return []byte(fmt.Sprintf("%s_%s", addrPrefix, addr))
}

func prefix(p string) []byte {
	return []byte(p + "_")
}

//==============================================================================
//Implement the Store interface

// LoadAddressBook implements Store.
func (s *BadgerStore) LoadAddressBook() ([]peers.Entry, error) {
	var res []peers.Entry
	err := s.iterate(prefix(addrPrefix), func(key, val []byte) error {
		var rec addrRecord
		if err := rec.Unmarshal(val); err != nil {
			return cm.NewStoreErr("Address", cm.Corrupted, string(key))
		}
		res = append(res, rec.entry())
		return nil
	})
	return res, err
}

// SaveAddressBook implements Store. The stored book is replaced.
func (s *BadgerStore) SaveAddressBook(entries []peers.Entry) error {
	var stale [][]byte
	err := s.iterate(prefix(addrPrefix), func(key, _ []byte) error {
		stale = append(stale, key)
		return nil
	})
	if err != nil {
		return err
	}

	w := s.newWriter()
	for _, k := range stale {
		if err := w.delete(k); err != nil {
			return err
		}
	}
	for _, e := range entries {
		val, err := newAddrRecord(e).Marshal()
		if err != nil {
			return err
		}
		if err := w.set(addrKey(e.Addr), val); err != nil {
			return err
		}
	}
	return w.commit()
}

// LoadShares implements Store.
func (s *BadgerStore) LoadShares() ([]*share.Share, error) {
	var res []*share.Share
	err := s.iterate(prefix(sharePrefix), func(key, val []byte) error {
		raw := &wire.RawShare{}
		if err := raw.Decode(bytes.NewReader(val)); err != nil {
			return cm.NewStoreErr("Share", cm.Corrupted, string(key))
		}
		sh, err := share.FromWire(raw)
		if err != nil {
			return cm.NewStoreErr("Share", cm.Corrupted, string(key))
		}
		res = append(res, sh)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.inmemStore.SaveShares(res)
	return res, nil
}

// SaveShares implements Store. Shares saved earlier by this store are not
// written again.
func (s *BadgerStore) SaveShares(shares []*share.Share) error {
	s.inmemStore.Lock()
	fresh := s.inmemStore.addShares(shares)
	s.inmemStore.Unlock()

	w := s.newWriter()
	for _, sh := range fresh {
		var buf bytes.Buffer
		if err := sh.ToWire().Encode(&buf); err != nil {
			return err
		}
		if err := w.set(shareKey(sh.Hash().String()), buf.Bytes()); err != nil {
			return err
		}
	}
	if err := w.commit(); err != nil {
		return err
	}

	if len(fresh) > 0 {
		s.logger.WithField("shares", len(fresh)).Debug("Saved shares")
	}
	return nil
}

// GetShare reads one share by hash.
func (s *BadgerStore) GetShare(hash string) (*share.Share, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(shareKey(hash))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Share", hash)
	}

	raw := &wire.RawShare{}
	if err := raw.Decode(bytes.NewReader(val)); err != nil {
		return nil, cm.NewStoreErr("Share", cm.Corrupted, hash)
	}
	return share.FromWire(raw)
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) iterate(p []byte, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// writer spreads writes over as many transactions as Badger needs.
type writer struct {
	db  *badger.DB
	txn *badger.Txn
}

func (s *BadgerStore) newWriter() *writer {
	return &writer{db: s.db, txn: s.db.NewTransaction(true)}
}

func (w *writer) apply(op func(txn *badger.Txn) error) error {
	err := op(w.txn)
	if err != badger.ErrTxnTooBig {
		return err
	}
	if err := w.txn.Commit(); err != nil {
		return err
	}
	w.txn = w.db.NewTransaction(true)
	return op(w.txn)
}

func (w *writer) set(key, val []byte) error {
	return w.apply(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func (w *writer) delete(key []byte) error {
	return w.apply(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (w *writer) commit() error {
	defer w.txn.Discard()
	return w.txn.Commit()
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

// addrRecord is the stored form of an address book entry.
type addrRecord struct {
	Host        string
	Port        uint16
	Services    uint64
	FirstSeen   int64
	LastSeen    int64
	Failures    int
	LastAttempt int64
}

func newAddrRecord(e peers.Entry) *addrRecord {
	rec := &addrRecord{
		Host:      e.Addr.Host,
		Port:      e.Addr.Port,
		Services:  e.Services,
		FirstSeen: e.FirstSeen.Unix(),
		LastSeen:  e.LastSeen.Unix(),
		Failures:  e.Failures,
	}
	if !e.LastAttempt.IsZero() {
		rec.LastAttempt = e.LastAttempt.Unix()
	}
	return rec
}

func (r *addrRecord) entry() peers.Entry {
	e := peers.Entry{
		Addr:      peers.Addr{Host: r.Host, Port: r.Port},
		Services:  r.Services,
		FirstSeen: unix(r.FirstSeen),
		LastSeen:  unix(r.LastSeen),
		Failures:  r.Failures,
	}
	if r.LastAttempt != 0 {
		e.LastAttempt = unix(r.LastAttempt)
	}
	return e
}

// Marshal returns the msgpack encoding of the record.
func (r *addrRecord) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	mh := new(codec.MsgpackHandle)
	mh.Canonical = true
	enc := codec.NewEncoder(b, mh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a msgpack record.
func (r *addrRecord) Unmarshal(data []byte) error {
	mh := new(codec.MsgpackHandle)
	mh.Canonical = true
	dec := codec.NewDecoder(bytes.NewReader(data), mh)
	return dec.Decode(r)
}

func unix(sec int64) time.Time {
	return time.Unix(sec, 0)
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil && isDBKeyNotFound(err) {
		return cm.NewStoreErr(name, cm.KeyNotFound, key)
	}
	return err
}
